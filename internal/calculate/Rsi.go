package calculate

// RSI calculates the relative strength index over the last period deltas.
// Gains and losses are simple averages of those deltas. A window without any
// movement yields nil: there is no signal in a flat price.
func RSI(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	window := prices[len(prices)-period-1:]

	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgGain == 0 && avgLoss == 0 {
		return nil
	}
	if avgLoss == 0 {
		return ptr(100.0)
	}

	rs := avgGain / avgLoss
	return ptr(100.0 - (100.0 / (1.0 + rs)))
}
