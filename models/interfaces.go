package models

import (
	"context"
	"time"
)

// CandleProvider returns candles in ascending time order
type CandleProvider interface {
	FetchCandles(ctx context.Context, instrumentID string, from, till time.Time, interval string) ([]Candle, error)
}

type AccountProvider interface {
	Balance(ctx context.Context) (float64, error)
	Holdings(ctx context.Context) (map[string]int64, error)
}

// OrderExecutor submits a decision to the broker and returns the confirmed fill
type OrderExecutor interface {
	Execute(ctx context.Context, decision Decision) (Fill, error)
}

type EventSink interface {
	Publish(ctx context.Context, event Event) error
}
