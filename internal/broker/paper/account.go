package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/models"
)

// DefaultBalance is the starting cash of a new paper account, RUB
const DefaultBalance = 100000.0

var (
	ErrInsufficientCash     = errors.New("insufficient cash for buy")
	ErrInsufficientHoldings = errors.New("insufficient holdings to sell")
	ErrInvalidOrder         = errors.New("invalid order")
)

// Account is a virtual brokerage account: it reports balance and holdings and
// fills market orders at the decision price
type Account struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]int64

	now    func() time.Time
	logger zerolog.Logger
}

// NewAccount constructs an account with starting cash
func NewAccount(startingCash float64) *Account {
	if startingCash <= 0 {
		startingCash = DefaultBalance
	}
	return &Account{
		cash:     startingCash,
		holdings: make(map[string]int64),
		now:      time.Now,
		logger:   log.With().Str("component", "paper_broker").Logger(),
	}
}

func (a *Account) Balance(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash, nil
}

// Holdings returns a copy of the quantities held per instrument
func (a *Account) Holdings(ctx context.Context) (map[string]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	holdings := make(map[string]int64, len(a.holdings))
	for id, qty := range a.holdings {
		holdings[id] = qty
	}
	return holdings, nil
}

// Seed rebuilds holdings from positions that were open before a restart and
// charges their entry cost to cash. It replaces any holdings already recorded.
func (a *Account) Seed(positions []*models.Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	holdings := make(map[string]int64, len(positions))
	cost := 0.0
	for _, p := range positions {
		if p == nil || p.Quantity <= 0 {
			continue
		}
		holdings[p.InstrumentID] += p.Quantity
		cost += p.EntryPrice * float64(p.Quantity)
	}

	if cost > a.cash {
		return fmt.Errorf("%w: open positions cost %.2f, have %.2f", ErrInsufficientCash, cost, a.cash)
	}

	a.cash -= cost
	a.holdings = holdings

	a.logger.Info().
		Int("positions", len(holdings)).
		Float64("cost", cost).
		Float64("cash", a.cash).
		Msg("Paper account seeded")

	return nil
}

// Execute fills a buy or sell at the decision price. Orders that would
// overdraw cash or sell more than held are rejected whole.
func (a *Account) Execute(ctx context.Context, decision models.Decision) (models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return models.Fill{}, err
	}
	if decision.Quantity <= 0 {
		return models.Fill{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if decision.Price <= 0 {
		return models.Fill{}, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	notional := float64(decision.Quantity) * decision.Price
	held := a.holdings[decision.InstrumentID]

	switch decision.Action {
	case models.ActionBuy:
		if notional > a.cash {
			return models.Fill{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, notional, a.cash)
		}
		a.cash -= notional
		a.holdings[decision.InstrumentID] = held + decision.Quantity

	case models.ActionSell:
		if held < decision.Quantity {
			return models.Fill{}, fmt.Errorf("%w: %s held %d, sell %d", ErrInsufficientHoldings, decision.InstrumentID, held, decision.Quantity)
		}
		a.cash += notional
		if left := held - decision.Quantity; left > 0 {
			a.holdings[decision.InstrumentID] = left
		} else {
			delete(a.holdings, decision.InstrumentID)
		}

	default:
		return models.Fill{}, fmt.Errorf("%w: action %q", ErrInvalidOrder, decision.Action)
	}

	fill := models.Fill{
		OrderID:  uuid.NewString(),
		Price:    decision.Price,
		Quantity: decision.Quantity,
		Time:     a.now(),
	}

	a.logger.Info().
		Str("order_id", fill.OrderID).
		Str("ticker", decision.InstrumentID).
		Str("action", string(decision.Action)).
		Int64("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Float64("cash", a.cash).
		Msg("Paper order filled")

	return fill, nil
}
