package calculate

import (
	"github.com/Alias1177/MoexSignal/models"
)

// Closes extracts close prices, oldest first
func Closes(candles []models.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	return closes
}

// CalculateAllIndicators computes the indicator snapshot for the newest candle.
// Fields stay nil when the window is too short for them.
func CalculateAllIndicators(candles []models.Candle, config *models.IndicatorConfig) models.IndicatorSnapshot {
	var snapshot models.IndicatorSnapshot
	if len(candles) == 0 {
		return snapshot
	}

	cfg := models.DefaultIndicatorConfig()
	if config != nil {
		cfg = *config
	}

	closes := Closes(candles)
	snapshot.Price = closes[len(closes)-1]

	snapshot.RSI = RSI(closes, cfg.RSIPeriod)

	snapshot.MACD, snapshot.MACDSignal, snapshot.MACDHistogram = MACD(
		closes,
		cfg.MACDFastPeriod,
		cfg.MACDSlowPeriod,
		cfg.MACDSignalPeriod,
	)

	snapshot.SMA, snapshot.BollingerUpper, snapshot.BollingerLower = BollingerBands(
		closes,
		cfg.BBPeriod,
		cfg.BBStdDev,
	)

	snapshot.ATR = ATR(candles, cfg.ATRPeriod)

	return snapshot
}
