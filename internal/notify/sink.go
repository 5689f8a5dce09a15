package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/Alias1177/MoexSignal/models"
)

// LogSink writes every event as a structured log line
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: log.With().Str("component", "events").Logger()}
}

func (s *LogSink) Publish(_ context.Context, event models.Event) error {
	entry := s.logger.Info().
		Str("kind", string(event.Kind)).
		Int64("user_id", event.UserID).
		Str("ticker", event.InstrumentID).
		Time("at", event.Timestamp)

	switch {
	case event.Trade != nil:
		entry = entry.
			Str("trade_id", event.Trade.ID.String()).
			Str("action", string(event.Trade.Action)).
			Int64("quantity", event.Trade.Quantity).
			Float64("price", event.Trade.Price).
			Float64("total", event.Trade.Total).
			Str("reason", event.Trade.Reason)
	case event.Backtest != nil:
		entry = entry.
			Float64("net_profit", event.Backtest.NetProfit).
			Int("trades", event.Backtest.TradeCount)
	case event.Kind == models.EventTraining:
		entry = entry.Int("rows", event.TrainingRows)
	}

	if event.Detail != "" {
		entry = entry.Str("detail", event.Detail)
	}
	entry.Msg("Event")
	return nil
}

// Fanout publishes every event to all sinks and joins their errors.
// A failing sink does not stop the others.
type Fanout []models.EventSink

func (f Fanout) Publish(ctx context.Context, event models.Event) error {
	var err error
	for i, sink := range f {
		if sink == nil {
			continue
		}
		if sinkErr := sink.Publish(ctx, event); sinkErr != nil {
			err = multierr.Append(err, fmt.Errorf("sink %d: %w", i, sinkErr))
		}
	}
	return err
}
