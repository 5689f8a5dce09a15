package models

// CalculateCandlesForHistory estimates how many candles of the given MOEX ISS
// interval cover the requested number of calendar days. Weekends are not
// traded, so intraday and daily counts use five trading days per week.
func CalculateCandlesForHistory(interval string, days int) int {
	if days <= 0 {
		return 0
	}
	tradingDays := days * 5 / 7

	switch interval {
	case "1":
		// main session is roughly 9 hours
		return tradingDays * 9 * 60
	case "10":
		return tradingDays * 9 * 6
	case "60":
		return tradingDays * 9
	case "24":
		return tradingDays
	case "7":
		return max(days/7, 1)
	case "31":
		return max(days/30, 1)
	}
	return 0
}
