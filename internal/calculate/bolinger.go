package calculate

import (
	"math"
)

// BollingerBands calculates the middle, upper and lower band over the trailing
// period using the population standard deviation
func BollingerBands(prices []float64, period int, stdDev float64) (*float64, *float64, *float64) {
	if period <= 0 || len(prices) < period {
		return nil, nil, nil
	}

	window := prices[len(prices)-period:]
	middle := calculateAverage(window)

	// Calculate standard deviation
	var variance float64
	for _, price := range window {
		variance += math.Pow(price-middle, 2)
	}
	sd := math.Sqrt(variance / float64(period))

	upper := middle + (sd * stdDev)
	lower := middle - (sd * stdDev)

	return ptr(middle), ptr(upper), ptr(lower)
}
