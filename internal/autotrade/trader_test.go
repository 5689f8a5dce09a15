package autotrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MoexSignal/internal/broker/paper"
	"github.com/Alias1177/MoexSignal/internal/trading/position"
	"github.com/Alias1177/MoexSignal/models"
)

var start = time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)

func candlesFromCloses(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return candles
}

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

type stubCandles struct {
	candles map[string][]models.Candle
}

func (s stubCandles) FetchCandles(_ context.Context, id string, _, _ time.Time, _ string) ([]models.Candle, error) {
	candles, ok := s.candles[id]
	if !ok {
		return nil, errors.New("security not found")
	}
	return candles, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSink) Publish(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type memoryStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
}

func (m *memoryStore) SavePosition(_ context.Context, _ int64, id string, p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		delete(m.positions, id)
		return nil
	}
	m.positions[id] = p.Clone()
	return nil
}

func (m *memoryStore) LoadPositions(context.Context, int64) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var positions []*models.Position
	for _, p := range m.positions {
		positions = append(positions, p.Clone())
	}
	return positions, nil
}

func newTrader(t *testing.T, tickers []string, minProfit float64) (*Trader, *paper.Account, *recordingSink, *memoryStore) {
	t.Helper()

	account := paper.NewAccount(100000)
	sink := &recordingSink{}
	store := &memoryStore{positions: make(map[string]*models.Position)}

	trader := New(Deps{
		Candles:  stubCandles{candles: map[string][]models.Candle{"SBER": candlesFromCloses(oversoldCloses())}},
		Account:  account,
		Executor: account,
		Sink:     sink,
		Store:    store,
	}, Options{
		UserID:            7,
		Tickers:           tickers,
		Interval:          "60",
		EnableBacktest:    true,
		BacktestMinProfit: minProfit,
	})
	trader.now = func() time.Time { return start.Add(50 * time.Hour) }

	return trader, account, sink, store
}

func TestRunCycleOpensPosition(t *testing.T) {
	ctx := context.Background()
	trader, account, sink, store := newTrader(t, []string{"SBER"}, 0)

	require.NoError(t, trader.RunCycle(ctx))

	key := position.Key{UserID: 7, InstrumentID: "SBER"}
	p := trader.Book().Get(key)
	require.NotNil(t, p)
	assert.Equal(t, int64(10), p.Quantity)
	assert.Equal(t, 87.0, p.EntryPrice)
	require.NotNil(t, p.StopLoss)
	assert.InDelta(t, 87-60.0/14, *p.StopLoss, 1e-9)
	assert.Contains(t, store.positions, "SBER")

	balance, _ := account.Balance(ctx)
	assert.Equal(t, 99130.0, balance)

	// the oversold history is too flat in RSI to fit a model
	assert.Equal(t, []models.EventKind{models.EventTraining, models.EventBacktest, models.EventTrade}, sink.kinds())
	trade := sink.events[2].Trade
	require.NotNil(t, trade)
	assert.Equal(t, models.ActionBuy, trade.Action)
	assert.Equal(t, int64(7), trade.UserID)
	assert.Equal(t, 870.0, trade.Total)

	// same candles again: the position is held, no retraining
	require.NoError(t, trader.RunCycle(ctx))
	assert.Equal(t, int64(10), trader.Book().Get(key).Quantity)
	assert.Equal(t, []models.EventKind{
		models.EventTraining, models.EventBacktest, models.EventTrade, models.EventBacktest,
	}, sink.kinds())
}

func TestRunCycleBacktestGateBlocksEntry(t *testing.T) {
	ctx := context.Background()
	trader, account, sink, _ := newTrader(t, []string{"SBER"}, 1)

	require.NoError(t, trader.RunCycle(ctx))

	assert.Nil(t, trader.Book().Get(position.Key{UserID: 7, InstrumentID: "SBER"}))
	balance, _ := account.Balance(ctx)
	assert.Equal(t, 100000.0, balance)
	assert.Equal(t, []models.EventKind{models.EventTraining, models.EventBacktest}, sink.kinds())
	assert.Equal(t, "entries blocked", sink.events[1].Detail)
}

func TestRunCycleIsolatesTickerFailures(t *testing.T) {
	trader, _, _, _ := newTrader(t, []string{"FAIL", "SBER"}, 0)

	err := trader.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAIL")
	assert.NotContains(t, err.Error(), "SBER")

	assert.NotNil(t, trader.Book().Get(position.Key{UserID: 7, InstrumentID: "SBER"}))
}

func TestRestore(t *testing.T) {
	trader, _, _, store := newTrader(t, []string{"SBER"}, 0)
	stop := 150.0
	store.positions["GAZP"] = &models.Position{InstrumentID: "GAZP", Quantity: 3, EntryPrice: 160, StopLoss: &stop}

	require.NoError(t, trader.Restore(context.Background()))

	p := trader.Book().Get(position.Key{UserID: 7, InstrumentID: "GAZP"})
	require.NotNil(t, p)
	assert.Equal(t, int64(3), p.Quantity)
}

func TestRestoreSeedsPaperAccountAndExits(t *testing.T) {
	ctx := context.Background()
	trader, account, sink, store := newTrader(t, []string{"SBER"}, 0)
	stop := 95.0
	store.positions["SBER"] = &models.Position{
		InstrumentID:           "SBER",
		EntryPrice:             100,
		Quantity:               5,
		StopLoss:               &stop,
		HighestPriceSinceEntry: 100,
	}

	require.NoError(t, trader.Restore(ctx))

	balance, _ := account.Balance(ctx)
	assert.Equal(t, 99500.0, balance)
	holdings, _ := account.Holdings(ctx)
	assert.Equal(t, map[string]int64{"SBER": 5}, holdings)

	// last close 87 is below the stop
	require.NoError(t, trader.RunCycle(ctx))

	assert.Equal(t, []models.EventKind{models.EventTraining, models.EventBacktest, models.EventTrade}, sink.kinds())
	trade := sink.events[2].Trade
	require.NotNil(t, trade)
	assert.Equal(t, models.ActionSell, trade.Action)
	assert.Equal(t, int64(5), trade.Quantity)
	assert.Equal(t, 87.0, trade.Price)
	assert.Contains(t, trade.Reason, "stop loss")

	assert.Nil(t, trader.Book().Get(position.Key{UserID: 7, InstrumentID: "SBER"}))
	assert.NotContains(t, store.positions, "SBER")
	holdings, _ = account.Holdings(ctx)
	assert.Empty(t, holdings)
	balance, _ = account.Balance(ctx)
	assert.Equal(t, 99935.0, balance)
}

type brokerAccount struct {
	holdings map[string]int64
}

func (b brokerAccount) Balance(context.Context) (float64, error) { return 100000, nil }

func (b brokerAccount) Holdings(context.Context) (map[string]int64, error) { return b.holdings, nil }

func TestRestoreReconcilesWithBrokerHoldings(t *testing.T) {
	store := &memoryStore{positions: map[string]*models.Position{
		"GAZP": {InstrumentID: "GAZP", EntryPrice: 160, Quantity: 3},
		"LKOH": {InstrumentID: "LKOH", EntryPrice: 7000, Quantity: 1},
		"ROSN": {InstrumentID: "ROSN", EntryPrice: 550, Quantity: 2},
	}}
	trader := New(Deps{
		Account: brokerAccount{holdings: map[string]int64{"GAZP": 2, "ROSN": 4}},
		Store:   store,
	}, Options{UserID: 7})

	require.NoError(t, trader.Restore(context.Background()))

	tests := []struct {
		name     string
		ticker   string
		quantity int64
	}{
		{name: "broker holds less", ticker: "GAZP", quantity: 2},
		{name: "broker holds none", ticker: "LKOH", quantity: 0},
		{name: "broker holds more", ticker: "ROSN", quantity: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := trader.Book().Get(position.Key{UserID: 7, InstrumentID: tt.ticker})
			if tt.quantity == 0 {
				assert.Nil(t, p)
				assert.NotContains(t, store.positions, tt.ticker)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.quantity, p.Quantity)
			assert.Equal(t, tt.quantity, store.positions[tt.ticker].Quantity)
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	trader, _, _, _ := newTrader(t, []string{"SBER"}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- trader.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
