package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Alias1177/MoexSignal/models"
)

type tradeRow struct {
	ID        uuid.UUID       `db:"id"`
	UserID    int64           `db:"user_id"`
	Ticker    string          `db:"ticker"`
	Action    string          `db:"action"`
	Price     decimal.Decimal `db:"price"`
	Quantity  int64           `db:"quantity"`
	Total     decimal.Decimal `db:"total"`
	Reason    string          `db:"reason"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *tradeRow) wrap(trade models.TradeRecord) *tradeRow {
	r.ID = trade.ID
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.UserID = trade.UserID
	r.Ticker = trade.InstrumentID
	r.Action = string(trade.Action)
	r.Price = decimal.NewFromFloat(trade.Price)
	r.Quantity = trade.Quantity
	r.Total = decimal.NewFromFloat(trade.Price).Mul(decimal.NewFromInt(trade.Quantity))
	r.Reason = trade.Reason
	r.CreatedAt = trade.Timestamp.UTC()
	return r
}

func (r *tradeRow) unwrap() models.TradeRecord {
	return models.TradeRecord{
		ID:           r.ID,
		UserID:       r.UserID,
		InstrumentID: r.Ticker,
		Action:       models.Action(r.Action),
		Price:        r.Price.InexactFloat64(),
		Quantity:     r.Quantity,
		Total:        r.Total.InexactFloat64(),
		Reason:       r.Reason,
		Timestamp:    r.CreatedAt,
	}
}

type signalRow struct {
	Ticker     string          `db:"ticker"`
	SignalType string          `db:"signal_type"`
	Value      decimal.Decimal `db:"value"`
	Detail     string          `db:"detail"`
	CreatedAt  time.Time       `db:"created_at"`
}

type positionRow struct {
	UserID       int64               `db:"user_id"`
	Ticker       string              `db:"ticker"`
	EntryPrice   decimal.Decimal     `db:"entry_price"`
	Quantity     int64               `db:"quantity"`
	StopLoss     decimal.NullDecimal `db:"stop_loss"`
	TakeProfit   decimal.NullDecimal `db:"take_profit"`
	HighestPrice decimal.Decimal     `db:"highest_price"`
	OpenedAt     time.Time           `db:"opened_at"`
}

func (r *positionRow) wrap(userID int64, p *models.Position) *positionRow {
	r.UserID = userID
	r.Ticker = p.InstrumentID
	r.EntryPrice = decimal.NewFromFloat(p.EntryPrice)
	r.Quantity = p.Quantity
	r.StopLoss = nullDecimal(p.StopLoss)
	r.TakeProfit = nullDecimal(p.TakeProfit)
	r.HighestPrice = decimal.NewFromFloat(p.HighestPriceSinceEntry)
	r.OpenedAt = p.OpenedAt.UTC()
	return r
}

func (r *positionRow) unwrap() *models.Position {
	return &models.Position{
		InstrumentID:           r.Ticker,
		EntryPrice:             r.EntryPrice.InexactFloat64(),
		Quantity:               r.Quantity,
		StopLoss:               floatPtr(r.StopLoss),
		TakeProfit:             floatPtr(r.TakeProfit),
		HighestPriceSinceEntry: r.HighestPrice.InexactFloat64(),
		OpenedAt:               r.OpenedAt,
	}
}

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

func floatPtr(v decimal.NullDecimal) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Decimal.InexactFloat64()
	return &f
}
