package autotrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/MoexSignal/internal/baktest"
	"github.com/Alias1177/MoexSignal/internal/prediction"
	"github.com/Alias1177/MoexSignal/internal/series"
	"github.com/Alias1177/MoexSignal/internal/trading/engine"
	"github.com/Alias1177/MoexSignal/internal/trading/position"
	"github.com/Alias1177/MoexSignal/internal/trading/risk"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

// PositionStore persists open positions between restarts
type PositionStore interface {
	SavePosition(ctx context.Context, userID int64, instrumentID string, p *models.Position) error
	LoadPositions(ctx context.Context, userID int64) ([]*models.Position, error)
}

// Deps are the collaborators of a Trader. Store may be nil.
type Deps struct {
	Candles  models.CandleProvider
	Account  models.AccountProvider
	Executor models.OrderExecutor
	Sink     models.EventSink
	Store    PositionStore
}

// Options configures the autotrading loop
type Options struct {
	UserID            int64
	Tickers           []string
	Interval          string
	HistoryDays       int
	WindowSize        int
	CycleInterval     time.Duration
	RetrainInterval   time.Duration
	Concurrency       int
	EnableBacktest    bool
	BacktestMinProfit float64
	Rule              strategy.Rule
	Risk              risk.Params
	Prediction        prediction.Options
}

// Trader runs the decision engine for every ticker of one user on a schedule
type Trader struct {
	deps Deps
	opts Options

	engine    *engine.Engine
	predictor *prediction.Predictor
	book      *position.Book

	mu          sync.Mutex
	windows     map[string]*series.PriceSeries
	lastTrained map[string]time.Time

	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Trader. The predictor and position book are owned by it.
func New(deps Deps, opts Options) *Trader {
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = 5 * time.Minute
	}
	if opts.RetrainInterval <= 0 {
		opts.RetrainInterval = 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = series.DefaultCapacity
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 30
	}
	if opts.Rule == (strategy.Rule{}) {
		opts.Rule = strategy.DefaultRule()
	}
	if opts.Risk == (risk.Params{}) {
		opts.Risk = risk.DefaultParams()
	}
	opts.Prediction.Indicators = opts.Rule.Indicators

	predictor := prediction.NewPredictor(opts.Prediction)

	return &Trader{
		deps:        deps,
		opts:        opts,
		engine:      engine.New(opts.Rule, opts.Risk, predictor),
		predictor:   predictor,
		book:        position.NewBook(),
		windows:     make(map[string]*series.PriceSeries),
		lastTrained: make(map[string]time.Time),
		now:         time.Now,
		logger:      log.With().Str("component", "autotrader").Int64("user_id", opts.UserID).Logger(),
	}
}

// Book exposes the open positions
func (t *Trader) Book() *position.Book {
	return t.book
}

// AccountSeeder is implemented by accounts that lose their state on restart
// and must be rebuilt from the persisted positions
type AccountSeeder interface {
	Seed(positions []*models.Position) error
}

// Restore loads persisted positions into the book. A seedable account is
// rebuilt from them first; then every position is checked against the
// broker holdings and shrunk or dropped when the broker holds less.
func (t *Trader) Restore(ctx context.Context) error {
	if t.deps.Store == nil {
		return nil
	}

	positions, err := t.deps.Store.LoadPositions(ctx, t.opts.UserID)
	if err != nil {
		return fmt.Errorf("restoring positions: %w", err)
	}

	if seeder, ok := t.deps.Account.(AccountSeeder); ok {
		if err := seeder.Seed(positions); err != nil {
			return fmt.Errorf("seeding account: %w", err)
		}
	}

	holdings, err := t.deps.Account.Holdings(ctx)
	if err != nil {
		return fmt.Errorf("reading holdings: %w", err)
	}

	restored := 0
	for _, p := range positions {
		if p == nil {
			continue
		}
		key := t.key(p.InstrumentID)
		held := holdings[p.InstrumentID]

		switch {
		case held <= 0:
			t.logger.Warn().Str("ticker", p.InstrumentID).Int64("quantity", p.Quantity).
				Msg("Broker holds none of the restored position, dropping it")
			t.savePosition(ctx, key, nil)
			continue
		case held < p.Quantity:
			t.logger.Warn().Str("ticker", p.InstrumentID).Int64("quantity", p.Quantity).Int64("held", held).
				Msg("Broker holds less than the restored position, shrinking it")
			p = p.Clone()
			p.Quantity = held
			t.savePosition(ctx, key, p)
		default:
			t.book.Set(key, p)
		}
		restored++
	}

	t.logger.Info().Int("positions", restored).Msg("Positions restored")
	return nil
}

// Run executes a cycle right away and then every CycleInterval until ctx is done
func (t *Trader) Run(ctx context.Context) error {
	t.logger.Info().
		Strs("tickers", t.opts.Tickers).
		Dur("interval", t.opts.CycleInterval).
		Msg("Autotrading started")

	ticker := time.NewTicker(t.opts.CycleInterval)
	defer ticker.Stop()

	for {
		if err := t.RunCycle(ctx); err != nil {
			t.logger.Error().Err(err).Msg("Autotrading cycle finished with errors")
		}

		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Autotrading stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle evaluates every ticker once. Tickers are processed concurrently and
// a failure on one does not stop the others.
func (t *Trader) RunCycle(ctx context.Context) error {
	started := t.now()

	var mu sync.Mutex
	var cycleErr error

	var eg errgroup.Group
	eg.SetLimit(t.opts.Concurrency)
	for _, ticker := range t.opts.Tickers {
		ticker := ticker
		eg.Go(func() error {
			if err := t.processTicker(ctx, ticker); err != nil {
				t.logger.Error().Err(err).Str("ticker", ticker).Msg("Ticker processing failed")
				mu.Lock()
				cycleErr = multierr.Append(cycleErr, fmt.Errorf("%s: %w", ticker, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	t.logger.Debug().
		Int("tickers", len(t.opts.Tickers)).
		Dur("took", t.now().Sub(started)).
		Msg("Autotrading cycle done")

	return cycleErr
}

func (t *Trader) key(instrumentID string) position.Key {
	return position.Key{UserID: t.opts.UserID, InstrumentID: instrumentID}
}

func (t *Trader) window(ticker string) *series.PriceSeries {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.windows[ticker]
	if !ok {
		s = series.NewPriceSeries(t.opts.WindowSize)
		t.windows[ticker] = s
	}
	return s
}

func (t *Trader) processTicker(ctx context.Context, ticker string) error {
	key := t.key(ticker)
	unlock := t.book.Lock(key)
	defer unlock()

	logger := t.logger.With().Str("ticker", ticker).Logger()
	now := t.now()

	history, err := t.deps.Candles.FetchCandles(ctx, ticker, now.AddDate(0, 0, -t.opts.HistoryDays), now, t.opts.Interval)
	if err != nil {
		return fmt.Errorf("fetching candles: %w", err)
	}
	if len(history) == 0 {
		logger.Warn().Msg("No candles returned")
		return nil
	}

	window := t.window(ticker)
	if _, err := window.AddAll(history); err != nil {
		return fmt.Errorf("updating window: %w", err)
	}

	t.maybeRetrain(ctx, ticker, history)

	entryBlocked := false
	if t.opts.EnableBacktest {
		result := baktest.Run(history, t.opts.Rule, baktest.Options{
			InstrumentID: ticker,
			WindowSize:   t.opts.WindowSize,
			Risk:         t.opts.Risk,
		})
		entryBlocked = !baktest.Gate(result, t.opts.BacktestMinProfit)

		detail := "entries allowed"
		if entryBlocked {
			detail = "entries blocked"
		}
		t.publish(ctx, models.Event{
			Kind:         models.EventBacktest,
			UserID:       t.opts.UserID,
			InstrumentID: ticker,
			Backtest:     &result,
			Detail:       detail,
			Timestamp:    now,
		})
	}

	balance, err := t.deps.Account.Balance(ctx)
	if err != nil {
		return fmt.Errorf("reading balance: %w", err)
	}
	holdings, err := t.deps.Account.Holdings(ctx)
	if err != nil {
		return fmt.Errorf("reading holdings: %w", err)
	}
	held := holdings[ticker]

	out := t.engine.Evaluate(engine.Input{
		InstrumentID: ticker,
		Window:       window.Candles(),
		Position:     t.book.Get(key),
		Balance:      balance,
		Holdings:     &held,
		EntryBlocked: entryBlocked,
	})
	t.savePosition(ctx, key, out.Position)

	decision := out.Decision
	logger.Debug().
		Str("action", string(decision.Action)).
		Float64("price", decision.Price).
		Str("reason", decision.Reason).
		Msg("Evaluated")

	if decision.Action == models.ActionHold {
		return nil
	}

	fill, err := t.deps.Executor.Execute(ctx, decision)
	if err != nil {
		return fmt.Errorf("executing %s of %d: %w", decision.Action, decision.Quantity, err)
	}

	t.savePosition(ctx, key, t.engine.Apply(out.Position, decision, fill))

	trade := models.TradeRecord{
		ID:           uuid.New(),
		UserID:       t.opts.UserID,
		InstrumentID: ticker,
		Action:       decision.Action,
		Price:        fill.Price,
		Quantity:     fill.Quantity,
		Total:        fill.Price * float64(fill.Quantity),
		Reason:       decision.Reason,
		Timestamp:    fill.Time,
	}

	logger.Info().
		Str("order_id", fill.OrderID).
		Str("action", string(trade.Action)).
		Int64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Msg("Trade executed")

	t.publish(ctx, models.Event{
		Kind:         models.EventTrade,
		UserID:       t.opts.UserID,
		InstrumentID: ticker,
		Trade:        &trade,
		Timestamp:    fill.Time,
	})

	return nil
}

// maybeRetrain refits the predictor once RetrainInterval has passed since the
// last attempt. Failures are reported but never stop trading.
func (t *Trader) maybeRetrain(ctx context.Context, ticker string, history []models.Candle) {
	now := t.now()

	t.mu.Lock()
	last, ok := t.lastTrained[ticker]
	if ok && now.Sub(last) < t.opts.RetrainInterval {
		t.mu.Unlock()
		return
	}
	t.lastTrained[ticker] = now
	t.mu.Unlock()

	event := models.Event{
		Kind:         models.EventTraining,
		UserID:       t.opts.UserID,
		InstrumentID: ticker,
		Timestamp:    now,
	}

	model, err := t.predictor.Train(ticker, history)
	switch {
	case err == nil:
		event.TrainingRows = model.Rows
		event.Detail = "model trained"
	case errors.Is(err, prediction.ErrInsufficientTrainingData), errors.Is(err, prediction.ErrDegenerateModel):
		event.Detail = err.Error()
	default:
		t.logger.Error().Err(err).Str("ticker", ticker).Msg("Training failed")
		event.Detail = err.Error()
	}

	t.publish(ctx, event)
}

func (t *Trader) savePosition(ctx context.Context, key position.Key, p *models.Position) {
	t.book.Set(key, p)

	if t.deps.Store == nil {
		return
	}
	if err := t.deps.Store.SavePosition(ctx, key.UserID, key.InstrumentID, p); err != nil {
		t.logger.Error().Err(err).Str("ticker", key.InstrumentID).Msg("Failed to persist position")
	}
}

func (t *Trader) publish(ctx context.Context, event models.Event) {
	if t.deps.Sink == nil {
		return
	}
	if err := t.deps.Sink.Publish(ctx, event); err != nil {
		t.logger.Error().Err(err).Str("kind", string(event.Kind)).Str("ticker", event.InstrumentID).Msg("Failed to publish event")
	}
}
