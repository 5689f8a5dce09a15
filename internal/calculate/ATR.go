package calculate

import (
	"math"

	"github.com/Alias1177/MoexSignal/models"
)

// ATR averages the true range over the trailing period candle pairs
func ATR(candles []models.Candle, period int) *float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. Abs(Current High - Previous Close)
		// 3. Abs(Current Low - Previous Close)
		highLow := candles[i].High - candles[i].Low
		highPrevClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowPrevClose := math.Abs(candles[i].Low - candles[i-1].Close)

		sum += math.Max(highLow, math.Max(highPrevClose, lowPrevClose))
	}

	return ptr(sum / float64(period))
}
