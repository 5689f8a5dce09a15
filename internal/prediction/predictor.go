package prediction

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/internal/calculate"
	"github.com/Alias1177/MoexSignal/models"
)

const (
	// DefaultWindowSize is the requested sliding window. Features are always
	// computed over at least the indicator lookback, so with the default
	// 12/26/9 MACD the effective window is 35 candles.
	DefaultWindowSize = 20
	MinWindowSize     = 15
	MaxWindowSize     = 30
	DefaultMinRows    = 10

	// intercept plus three features
	coefficientCount = 4
)

var (
	ErrInsufficientTrainingData = errors.New("insufficient training data")
	ErrDegenerateModel          = errors.New("degenerate regression model")
)

// Model is a fitted linear regression for one instrument.
// Coefficients are [intercept, close, rsi, macd - signal].
type Model struct {
	Coefficients [coefficientCount]float64
	Rows         int
	TrainedAt    time.Time
}

// Estimate applies the model to a feature vector
func (m *Model) Estimate(f Features) float64 {
	return m.Coefficients[0] +
		m.Coefficients[1]*f.Close +
		m.Coefficients[2]*f.RSI +
		m.Coefficients[3]*f.MACDDiff
}

// Features is the regression input derived from one window
type Features struct {
	Close    float64
	RSI      float64
	MACDDiff float64
}

// Options configures training
type Options struct {
	WindowSize int
	MinRows    int
	Indicators models.IndicatorConfig
}

// DefaultOptions returns the standard training options
func DefaultOptions() Options {
	return Options{
		WindowSize: DefaultWindowSize,
		MinRows:    DefaultMinRows,
		Indicators: models.DefaultIndicatorConfig(),
	}
}

// Predictor keeps one model per instrument
type Predictor struct {
	mu     sync.RWMutex
	models map[string]*Model

	opts   Options
	now    func() time.Time
	logger zerolog.Logger
}

// NewPredictor creates a predictor with no trained models
func NewPredictor(opts Options) *Predictor {
	if opts.WindowSize == 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.WindowSize < MinWindowSize {
		opts.WindowSize = MinWindowSize
	}
	if opts.WindowSize > MaxWindowSize {
		opts.WindowSize = MaxWindowSize
	}
	if opts.MinRows <= 0 {
		opts.MinRows = DefaultMinRows
	}
	if opts.Indicators == (models.IndicatorConfig{}) {
		opts.Indicators = models.DefaultIndicatorConfig()
	}

	return &Predictor{
		models: make(map[string]*Model),
		opts:   opts,
		now:    time.Now,
		logger: log.With().Str("component", "predictor").Logger(),
	}
}

// featureWindow is the number of candles each row is computed from.
// MACD needs more history than the sliding window itself, so the window
// never drops below the indicator lookback.
func (p *Predictor) featureWindow() int {
	if lookback := p.opts.Indicators.Lookback(); lookback > p.opts.WindowSize {
		return lookback
	}
	return p.opts.WindowSize
}

// MinHistory is the shortest history that can yield MinRows training rows
func (p *Predictor) MinHistory() int {
	return p.featureWindow() + p.opts.MinRows
}

// ExtractFeatures computes the feature vector from the trailing window.
// Returns false when any indicator is unavailable.
func (p *Predictor) ExtractFeatures(candles []models.Candle) (Features, bool) {
	window := p.featureWindow()
	if len(candles) < window {
		return Features{}, false
	}
	closes := calculate.Closes(candles[len(candles)-window:])

	rsi := calculate.RSI(closes, p.opts.Indicators.RSIPeriod)
	macd, signal, _ := calculate.MACD(
		closes,
		p.opts.Indicators.MACDFastPeriod,
		p.opts.Indicators.MACDSlowPeriod,
		p.opts.Indicators.MACDSignalPeriod,
	)
	if rsi == nil || macd == nil || signal == nil {
		return Features{}, false
	}

	return Features{
		Close:    closes[len(closes)-1],
		RSI:      *rsi,
		MACDDiff: *macd - *signal,
	}, true
}

// Train fits a new model for ticker from history (oldest first) and replaces
// the previous one. On error the previous model is kept.
func (p *Predictor) Train(ticker string, history []models.Candle) (*Model, error) {
	logger := p.logger.With().Str("ticker", ticker).Logger()

	var rows [][]float64
	var labels []float64

	window := p.featureWindow()
	for end := window; end < len(history); end++ {
		features, ok := p.ExtractFeatures(history[end-window : end])
		if !ok {
			continue
		}
		rows = append(rows, []float64{features.Close, features.RSI, features.MACDDiff})
		labels = append(labels, history[end].Close)
	}

	if len(rows) < p.opts.MinRows {
		logger.Warn().
			Int("rows", len(rows)).
			Int("min_rows", p.opts.MinRows).
			Int("candles", len(history)).
			Msg("Skipping training")
		return nil, fmt.Errorf("%w: %d rows, need %d", ErrInsufficientTrainingData, len(rows), p.opts.MinRows)
	}

	coefficients, err := fitLinear(rows, labels)
	if err != nil {
		logger.Warn().Err(err).Int("rows", len(rows)).Msg("Training failed, keeping previous model")
		return nil, err
	}

	model := &Model{
		Rows:      len(rows),
		TrainedAt: p.now(),
	}
	copy(model.Coefficients[:], coefficients)

	p.mu.Lock()
	p.models[ticker] = model
	p.mu.Unlock()

	logger.Info().
		Int("rows", model.Rows).
		Floats64("coefficients", coefficients).
		Msg("Model trained")

	return model, nil
}

// Predict estimates the next close. Returns false when no model exists for
// ticker or the window is too short for the features.
func (p *Predictor) Predict(ticker string, recent []models.Candle) (float64, bool) {
	p.mu.RLock()
	model, ok := p.models[ticker]
	p.mu.RUnlock()
	if !ok {
		return 0, false
	}

	features, ok := p.ExtractFeatures(recent)
	if !ok {
		return 0, false
	}

	estimate := model.Estimate(features)
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		return 0, false
	}
	return estimate, true
}

// Model returns the current model for ticker
func (p *Predictor) Model(ticker string) (*Model, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	model, ok := p.models[ticker]
	return model, ok
}

func (p *Predictor) Trained(ticker string) bool {
	_, ok := p.Model(ticker)
	return ok
}

// Forget drops the model for ticker
func (p *Predictor) Forget(ticker string) {
	p.mu.Lock()
	delete(p.models, ticker)
	p.mu.Unlock()
}
