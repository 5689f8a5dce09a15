package database

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Alias1177/MoexSignal/models"
)

const (
	insertTradeQuery = `INSERT INTO trade_history
		(id, user_id, ticker, action, price, quantity, total, reason, created_at)
		VALUES (:id, :user_id, :ticker, :action, :price, :quantity, :total, :reason, :created_at)
		ON CONFLICT (id) DO NOTHING`

	insertSignalQuery = `INSERT INTO signals
		(ticker, signal_type, value, detail, created_at)
		VALUES (:ticker, :signal_type, :value, :detail, :created_at)`

	upsertPositionQuery = `INSERT INTO positions
		(user_id, ticker, entry_price, quantity, stop_loss, take_profit, highest_price, opened_at)
		VALUES (:user_id, :ticker, :entry_price, :quantity, :stop_loss, :take_profit, :highest_price, :opened_at)
		ON CONFLICT (user_id, ticker) DO UPDATE SET
			entry_price = EXCLUDED.entry_price,
			quantity = EXCLUDED.quantity,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			highest_price = EXCLUDED.highest_price,
			opened_at = EXCLUDED.opened_at`
)

// Signal types stored in the signals table
const (
	SignalBacktest = "backtest"
	SignalTraining = "training"
)

// SaveTrade stores an executed trade in the trade history
func (db *DB) SaveTrade(ctx context.Context, trade models.TradeRecord) error {
	row := new(tradeRow).wrap(trade)
	if _, err := db.NamedExecContext(ctx, insertTradeQuery, row); err != nil {
		return fmt.Errorf("could not save trade %s: %w", row.ID, err)
	}
	return nil
}

// RecentTrades returns the latest trades of a user, newest first
func (db *DB) RecentTrades(ctx context.Context, userID int64, limit int) ([]models.TradeRecord, error) {
	var rows []tradeRow
	err := db.SelectContext(ctx, &rows, `
		SELECT id, user_id, ticker, action, price, quantity, total, reason, created_at
		FROM trade_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("could not load trades of user %d: %w", userID, err)
	}

	trades := make([]models.TradeRecord, 0, len(rows))
	for i := range rows {
		trades = append(trades, rows[i].unwrap())
	}
	return trades, nil
}

// SaveSignal stores a backtest or training outcome
func (db *DB) SaveSignal(ctx context.Context, event models.Event) error {
	row, ok := signalFromEvent(event)
	if !ok {
		return fmt.Errorf("event %q is not a signal", event.Kind)
	}
	if _, err := db.NamedExecContext(ctx, insertSignalQuery, row); err != nil {
		return fmt.Errorf("could not save %s signal for %s: %w", row.SignalType, row.Ticker, err)
	}
	return nil
}

func signalFromEvent(event models.Event) (*signalRow, bool) {
	row := &signalRow{
		Ticker:    event.InstrumentID,
		Detail:    event.Detail,
		CreatedAt: event.Timestamp.UTC(),
	}

	switch event.Kind {
	case models.EventBacktest:
		if event.Backtest == nil {
			return nil, false
		}
		row.SignalType = SignalBacktest
		row.Value = decimal.NewFromFloat(event.Backtest.NetProfit)
	case models.EventTraining:
		row.SignalType = SignalTraining
		row.Value = decimal.NewFromInt(int64(event.TrainingRows))
	default:
		return nil, false
	}
	return row, true
}

// SavePosition stores the open position of a user, a nil or empty position removes it
func (db *DB) SavePosition(ctx context.Context, userID int64, instrumentID string, position *models.Position) error {
	if position == nil || position.Quantity <= 0 {
		_, err := db.ExecContext(ctx, `DELETE FROM positions WHERE user_id = $1 AND ticker = $2`, userID, instrumentID)
		if err != nil {
			return fmt.Errorf("could not delete position %s: %w", instrumentID, err)
		}
		return nil
	}

	row := new(positionRow).wrap(userID, position)
	if _, err := db.NamedExecContext(ctx, upsertPositionQuery, row); err != nil {
		return fmt.Errorf("could not save position %s: %w", instrumentID, err)
	}
	return nil
}

// LoadPositions returns the open positions of a user
func (db *DB) LoadPositions(ctx context.Context, userID int64) ([]*models.Position, error) {
	var rows []positionRow
	err := db.SelectContext(ctx, &rows, `
		SELECT user_id, ticker, entry_price, quantity, stop_loss, take_profit, highest_price, opened_at
		FROM positions
		WHERE user_id = $1
		ORDER BY ticker
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("could not load positions of user %d: %w", userID, err)
	}

	positions := make([]*models.Position, 0, len(rows))
	for i := range rows {
		positions = append(positions, rows[i].unwrap())
	}
	return positions, nil
}

// Publish implements the event sink: trades go to trade_history,
// backtest and training outcomes to signals
func (db *DB) Publish(ctx context.Context, event models.Event) error {
	switch event.Kind {
	case models.EventTrade:
		if event.Trade == nil {
			return fmt.Errorf("trade event without trade")
		}
		return db.SaveTrade(ctx, *event.Trade)
	case models.EventBacktest, models.EventTraining:
		return db.SaveSignal(ctx, event)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}
