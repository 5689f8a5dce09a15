package models

import (
	"time"

	"github.com/google/uuid"
)

// IndicatorConfig holds indicator periods used by the signal engine
type IndicatorConfig struct {
	RSIPeriod        int     `json:"rsi_period"`
	MACDFastPeriod   int     `json:"macd_fast_period"`
	MACDSlowPeriod   int     `json:"macd_slow_period"`
	MACDSignalPeriod int     `json:"macd_signal_period"`
	BBPeriod         int     `json:"bb_period"`
	BBStdDev         float64 `json:"bb_std_dev"`
	ATRPeriod        int     `json:"atr_period"`
}

// DefaultIndicatorConfig returns the classic indicator periods
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		RSIPeriod:        14,
		MACDFastPeriod:   12,
		MACDSlowPeriod:   26,
		MACDSignalPeriod: 9,
		BBPeriod:         20,
		BBStdDev:         2.0,
		ATRPeriod:        14,
	}
}

// Lookback is the number of candles needed before every indicator is available
func (c IndicatorConfig) Lookback() int {
	n := c.RSIPeriod + 1
	if m := c.MACDSlowPeriod + c.MACDSignalPeriod; m > n {
		n = m
	}
	if c.BBPeriod > n {
		n = c.BBPeriod
	}
	if c.ATRPeriod+1 > n {
		n = c.ATRPeriod + 1
	}
	return n
}

// Candle represents a single price candle
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// IndicatorSnapshot holds indicator values for the newest candle of a window.
// A nil field means the window was too short for that indicator.
type IndicatorSnapshot struct {
	Price          float64  `json:"price"`
	RSI            *float64 `json:"rsi"`
	MACD           *float64 `json:"macd"`
	MACDSignal     *float64 `json:"macd_signal"`
	MACDHistogram  *float64 `json:"macd_histogram"`
	SMA            *float64 `json:"sma"`
	BollingerUpper *float64 `json:"bollinger_upper"`
	BollingerLower *float64 `json:"bollinger_lower"`
	ATR            *float64 `json:"atr"`
}

// Complete reports whether every indicator value is present
func (s IndicatorSnapshot) Complete() bool {
	return s.RSI != nil && s.MACD != nil && s.MACDSignal != nil && s.MACDHistogram != nil &&
		s.SMA != nil && s.BollingerUpper != nil && s.BollingerLower != nil && s.ATR != nil
}

// Position is an open long position for one instrument
type Position struct {
	InstrumentID           string    `json:"instrument_id"`
	EntryPrice             float64   `json:"entry_price"`
	Quantity               int64     `json:"quantity"`
	StopLoss               *float64  `json:"stop_loss,omitempty"`
	TakeProfit             *float64  `json:"take_profit,omitempty"`
	HighestPriceSinceEntry float64   `json:"highest_price_since_entry"`
	OpenedAt               time.Time `json:"opened_at"`
}

// Clone returns a deep copy so callers never share level pointers
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	if p.StopLoss != nil {
		v := *p.StopLoss
		c.StopLoss = &v
	}
	if p.TakeProfit != nil {
		v := *p.TakeProfit
		c.TakeProfit = &v
	}
	return &c
}

// Action is the outcome of an evaluation
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Decision is emitted by the engine for the order-execution adapter
type Decision struct {
	InstrumentID string   `json:"instrument_id"`
	Action       Action   `json:"action"`
	Quantity     int64    `json:"quantity"`
	Price        float64  `json:"price"`
	Reason       string   `json:"reason,omitempty"`
	ATR          *float64 `json:"atr,omitempty"` // ATR at decision time, used to derive stop/target on fill
}

// Fill is the broker confirmation of an executed decision
type Fill struct {
	OrderID  string    `json:"order_id"`
	Price    float64   `json:"price"`
	Quantity int64     `json:"quantity"`
	Time     time.Time `json:"time"`
}

// BacktestResult is the outcome of a historical replay
type BacktestResult struct {
	NetProfit  float64 `json:"net_profit"`
	TradeCount int     `json:"trade_count"`
}

// TradeRecord describes an executed entry or exit
type TradeRecord struct {
	ID           uuid.UUID `json:"id"`
	UserID       int64     `json:"user_id"`
	InstrumentID string    `json:"instrument_id"`
	Action       Action    `json:"action"`
	Price        float64   `json:"price"`
	Quantity     int64     `json:"quantity"`
	Total        float64   `json:"total"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventKind tells sinks what an Event carries
type EventKind string

const (
	EventTrade    EventKind = "trade"
	EventBacktest EventKind = "backtest"
	EventTraining EventKind = "training"
)

// Event is the structured report handed to logging, persistence and chat sinks
type Event struct {
	Kind         EventKind       `json:"kind"`
	UserID       int64           `json:"user_id"`
	InstrumentID string          `json:"instrument_id"`
	Trade        *TradeRecord    `json:"trade,omitempty"`
	Backtest     *BacktestResult `json:"backtest,omitempty"`
	TrainingRows int             `json:"training_rows,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
