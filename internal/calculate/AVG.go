package calculate

// calculateAverage calculates simple average
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}

// SMA returns the simple moving average of the trailing period values
func SMA(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	return ptr(calculateAverage(prices[len(prices)-period:]))
}

func ptr(v float64) *float64 {
	return &v
}
