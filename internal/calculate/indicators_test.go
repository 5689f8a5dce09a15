package calculate

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MoexSignal/models"
)

// generateTestCandles builds n candles using the provided generator
func generateTestCandles(n int, generator func(i int) models.Candle) []models.Candle {
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = generator(i)
	}
	return candles
}

func candlesFromCloses(closes []float64) []models.Candle {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return generateTestCandles(len(closes), func(i int) models.Candle {
		return models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      closes[i],
			High:      closes[i] + 1,
			Low:       closes[i] - 1,
			Close:     closes[i],
			Volume:    1000,
		}
	})
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

// oversoldCloses is a flat stretch, a steady slide, a pause and a final drop
func oversoldCloses() []float64 {
	closes := make([]float64, 0, 50)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	price := 100.0
	for i := 0; i < 20; i++ {
		price -= 0.5
		closes = append(closes, price)
	}
	for i := 0; i < 9; i++ {
		closes = append(closes, 90)
	}
	return append(closes, 87)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected *float64
	}{
		{
			name:     "Недостаточно данных",
			prices:   risingCloses(14),
			expected: nil,
		},
		{
			name:     "empty input",
			prices:   nil,
			expected: nil,
		},
		{
			name:     "only gains",
			prices:   risingCloses(40),
			expected: ptr(100),
		},
		{
			name:     "flat window",
			prices:   []float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50},
			expected: nil,
		},
		{
			name:     "only losses",
			prices:   []float64{30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16},
			expected: ptr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RSI(tt.prices, 14)
			if tt.expected == nil {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.InDelta(t, *tt.expected, *result, 1e-9)
		})
	}
}

func TestRSIMixedMoves(t *testing.T) {
	// two up moves of 2, two down moves of 1
	prices := []float64{10, 12, 11, 13, 12}
	result := RSI(prices, 4)
	require.NotNil(t, result)
	// RS = 1 / 0.5 = 2
	assert.InDelta(t, 100-100.0/3, *result, 1e-9)
}

func TestRSIUsesOnlyTrailingWindow(t *testing.T) {
	prices := append([]float64{500, 10}, risingCloses(15)...)
	result := RSI(prices, 14)
	require.NotNil(t, result)
	assert.Equal(t, 100.0, *result)
}

func TestEMA(t *testing.T) {
	assert.Nil(t, EMA([]float64{1, 2}, 3))
	assert.Nil(t, EMA([]float64{1, 2, 3}, 0))

	result := EMA([]float64{2, 4, 6, 8}, 3)
	require.Len(t, result, 2)
	// seed = SMA(2,4,6) = 4, k = 0.5
	assert.InDelta(t, 4.0, result[0], 1e-12)
	assert.InDelta(t, 6.0, result[1], 1e-12)
}

func TestMACD(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		macd, signal, hist := MACD(risingCloses(34), 12, 26, 9)
		assert.Nil(t, macd)
		assert.Nil(t, signal)
		assert.Nil(t, hist)
	})

	t.Run("linear trend converges", func(t *testing.T) {
		macd, signal, hist := MACD(risingCloses(40), 12, 26, 9)
		require.NotNil(t, macd)
		require.NotNil(t, signal)
		require.NotNil(t, hist)
		// for a straight line both EMAs lag by (period-1)/2 steps
		assert.InDelta(t, 7.0, *macd, 1e-9)
		assert.InDelta(t, 7.0, *signal, 1e-9)
		assert.InDelta(t, 0.0, *hist, 1e-9)
	})

	t.Run("histogram equals macd minus signal", func(t *testing.T) {
		macd, signal, hist := MACD(oversoldCloses(), 12, 26, 9)
		require.NotNil(t, hist)
		assert.Equal(t, *macd-*signal, *hist)
		assert.Greater(t, *hist, 0.0)
	})

	t.Run("invalid periods", func(t *testing.T) {
		macd, _, _ := MACD(risingCloses(60), 0, 26, 9)
		assert.Nil(t, macd)
	})
}

func TestBollingerBands(t *testing.T) {
	sma, upper, lower := BollingerBands([]float64{1, 2, 3}, 20, 2)
	assert.Nil(t, sma)
	assert.Nil(t, upper)
	assert.Nil(t, lower)

	// population sd of {2,4,4,4,5,5,7,9} is exactly 2
	sma, upper, lower = BollingerBands([]float64{100, 2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	require.NotNil(t, sma)
	assert.InDelta(t, 5.0, *sma, 1e-12)
	assert.InDelta(t, 9.0, *upper, 1e-12)
	assert.InDelta(t, 1.0, *lower, 1e-12)

	sma, upper, lower = BollingerBands([]float64{25, 25, 25, 25}, 4, 2)
	require.NotNil(t, sma)
	assert.Equal(t, 25.0, *upper)
	assert.Equal(t, 25.0, *lower)
}

func TestATR(t *testing.T) {
	assert.Nil(t, ATR(candlesFromCloses(risingCloses(14)), 14))
	assert.Nil(t, ATR(nil, 14))

	// every true range is |close - prev close| + 1 = 2
	result := ATR(candlesFromCloses(risingCloses(30)), 14)
	require.NotNil(t, result)
	assert.InDelta(t, 2.0, *result, 1e-12)

	// gap down widens the last true range to 4
	result = ATR(candlesFromCloses(oversoldCloses()), 14)
	require.NotNil(t, result)
	assert.InDelta(t, 30.0/14, *result, 1e-12)
}

func TestCalculateAllIndicators(t *testing.T) {
	t.Run("empty window", func(t *testing.T) {
		snapshot := CalculateAllIndicators(nil, nil)
		assert.False(t, snapshot.Complete())
		assert.Zero(t, snapshot.Price)
	})

	t.Run("short window keeps what it can", func(t *testing.T) {
		snapshot := CalculateAllIndicators(candlesFromCloses(risingCloses(20)), nil)
		assert.NotNil(t, snapshot.RSI)
		assert.NotNil(t, snapshot.SMA)
		assert.NotNil(t, snapshot.ATR)
		assert.Nil(t, snapshot.MACD)
		assert.False(t, snapshot.Complete())
	})

	t.Run("oversold window", func(t *testing.T) {
		cfg := models.DefaultIndicatorConfig()
		snapshot := CalculateAllIndicators(candlesFromCloses(oversoldCloses()), &cfg)
		require.True(t, snapshot.Complete())
		assert.Equal(t, 87.0, snapshot.Price)
		assert.InDelta(t, 0.0, *snapshot.RSI, 1e-12)
		assert.Greater(t, *snapshot.MACDHistogram, 0.0)
		assert.Less(t, snapshot.Price, *snapshot.BollingerLower)
	})

	t.Run("rising window is overbought", func(t *testing.T) {
		snapshot := CalculateAllIndicators(candlesFromCloses(risingCloses(40)), nil)
		require.True(t, snapshot.Complete())
		assert.Equal(t, 100.0, *snapshot.RSI)
		assert.Greater(t, snapshot.Price, *snapshot.SMA)
	})
}

func TestSMA(t *testing.T) {
	assert.Nil(t, SMA([]float64{1}, 2))
	result := SMA([]float64{1, 2, 3, 4}, 2)
	require.NotNil(t, result)
	assert.Equal(t, 3.5, *result)
}

func TestIndicatorBoundsOnGeneratedSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	randomWalk := make([]float64, 150)
	price := 250.0
	for i := range randomWalk {
		price *= 1 + (rng.Float64()-0.5)*0.04
		randomWalk[i] = price
	}

	alternating := make([]float64, 150)
	for i := range alternating {
		alternating[i] = 100 + 3*float64(i%2)
	}

	// quiet drift broken by opening gaps in both directions
	gapped := make([]float64, 150)
	price = 1500
	for i := range gapped {
		switch {
		case i%17 == 0:
			price *= 0.85
		case i%11 == 0:
			price *= 1.12
		default:
			price += 0.3
		}
		gapped[i] = price
	}

	flat := make([]float64, 150)
	for i := range flat {
		flat[i] = 42
	}

	tests := []struct {
		name   string
		closes []float64
	}{
		{name: "random walk", closes: randomWalk},
		{name: "alternating", closes: alternating},
		{name: "gapped", closes: gapped},
		{name: "flat", closes: flat},
		{name: "rising", closes: risingCloses(150)},
		{name: "oversold", closes: oversoldCloses()},
	}

	cfg := models.DefaultIndicatorConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := candlesFromCloses(tt.closes)

			for end := 1; end <= len(tt.closes); end++ {
				closes := tt.closes[:end]

				if rsi := RSI(closes, cfg.RSIPeriod); rsi != nil {
					assert.GreaterOrEqual(t, *rsi, 0.0, "RSI at %d", end)
					assert.LessOrEqual(t, *rsi, 100.0, "RSI at %d", end)
				}

				sma, upper, lower := BollingerBands(closes, cfg.BBPeriod, cfg.BBStdDev)
				if sma != nil {
					require.NotNil(t, upper)
					require.NotNil(t, lower)
					assert.LessOrEqual(t, *lower, *sma, "lower band at %d", end)
					assert.LessOrEqual(t, *sma, *upper, "upper band at %d", end)
				}

				macd, signal, hist := MACD(closes, cfg.MACDFastPeriod, cfg.MACDSlowPeriod, cfg.MACDSignalPeriod)
				if hist != nil {
					assert.InDelta(t, *macd-*signal, *hist, 1e-9, "histogram at %d", end)
				}

				if atr := ATR(candles[:end], cfg.ATRPeriod); atr != nil {
					assert.False(t, math.IsNaN(*atr))
					assert.GreaterOrEqual(t, *atr, 0.0, "ATR at %d", end)
				}
			}
		})
	}
}
