package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MoexSignal/models"
)

func TestAccount_BuyAndSell(t *testing.T) {
	ctx := context.Background()
	account := NewAccount(0)

	balance, err := account.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultBalance, balance)

	fill, err := account.Execute(ctx, models.Decision{InstrumentID: "SBER", Action: models.ActionBuy, Quantity: 10, Price: 280})
	require.NoError(t, err)
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, int64(10), fill.Quantity)
	assert.Equal(t, 280.0, fill.Price)

	balance, _ = account.Balance(ctx)
	assert.Equal(t, 97200.0, balance)

	holdings, _ := account.Holdings(ctx)
	assert.Equal(t, map[string]int64{"SBER": 10}, holdings)

	_, err = account.Execute(ctx, models.Decision{InstrumentID: "SBER", Action: models.ActionSell, Quantity: 10, Price: 290})
	require.NoError(t, err)

	balance, _ = account.Balance(ctx)
	assert.Equal(t, 100100.0, balance)
	holdings, _ = account.Holdings(ctx)
	assert.Empty(t, holdings)
}

func TestAccount_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		decision models.Decision
		target   error
	}{
		{
			name:     "overdraw",
			decision: models.Decision{InstrumentID: "LKOH", Action: models.ActionBuy, Quantity: 10, Price: 7000},
			target:   ErrInsufficientCash,
		},
		{
			name:     "oversell",
			decision: models.Decision{InstrumentID: "SBER", Action: models.ActionSell, Quantity: 6, Price: 280},
			target:   ErrInsufficientHoldings,
		},
		{
			name:     "zero quantity",
			decision: models.Decision{InstrumentID: "SBER", Action: models.ActionBuy, Price: 280},
			target:   ErrInvalidOrder,
		},
		{
			name:     "hold is not an order",
			decision: models.Decision{InstrumentID: "SBER", Action: models.ActionHold, Quantity: 1, Price: 280},
			target:   ErrInvalidOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			account := NewAccount(50000)
			_, err := account.Execute(ctx, models.Decision{InstrumentID: "SBER", Action: models.ActionBuy, Quantity: 5, Price: 280})
			require.NoError(t, err)

			_, err = account.Execute(ctx, tt.decision)
			assert.ErrorIs(t, err, tt.target)

			// rejected orders leave the account untouched
			balance, _ := account.Balance(ctx)
			assert.Equal(t, 48600.0, balance)
			holdings, _ := account.Holdings(ctx)
			assert.Equal(t, map[string]int64{"SBER": 5}, holdings)
		})
	}
}

func TestAccount_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAccount(1000).Execute(ctx, models.Decision{InstrumentID: "SBER", Action: models.ActionBuy, Quantity: 1, Price: 10})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccount_Seed(t *testing.T) {
	ctx := context.Background()
	account := NewAccount(100000)

	err := account.Seed([]*models.Position{
		{InstrumentID: "SBER", EntryPrice: 100, Quantity: 5},
		{InstrumentID: "GAZP", EntryPrice: 160, Quantity: 3},
		nil,
		{InstrumentID: "LKOH", EntryPrice: 7000, Quantity: 0},
	})
	require.NoError(t, err)

	balance, _ := account.Balance(ctx)
	assert.Equal(t, 99020.0, balance)
	holdings, _ := account.Holdings(ctx)
	assert.Equal(t, map[string]int64{"SBER": 5, "GAZP": 3}, holdings)

	// the seeded lot can be sold
	_, err = account.Execute(ctx, models.Decision{InstrumentID: "SBER", Action: models.ActionSell, Quantity: 5, Price: 87})
	require.NoError(t, err)
	balance, _ = account.Balance(ctx)
	assert.Equal(t, 99455.0, balance)
}

func TestAccount_SeedTooExpensive(t *testing.T) {
	ctx := context.Background()
	account := NewAccount(1000)

	err := account.Seed([]*models.Position{{InstrumentID: "LKOH", EntryPrice: 7000, Quantity: 1}})
	assert.ErrorIs(t, err, ErrInsufficientCash)

	balance, _ := account.Balance(ctx)
	assert.Equal(t, 1000.0, balance)
	holdings, _ := account.Holdings(ctx)
	assert.Empty(t, holdings)
}
