package calculate

// EMA returns the exponential moving average series of prices.
// The first value is the simple average of the first period prices, so
// result[0] lines up with prices[period-1]. Returns nil when there is not
// enough data.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	// Multiplier for weighting the EMA
	multiplier := 2.0 / float64(period+1)

	result := make([]float64, 0, len(prices)-period+1)
	ema := calculateAverage(prices[:period])
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = prices[i]*multiplier + ema*(1-multiplier)
		result = append(result, ema)
	}

	return result
}
