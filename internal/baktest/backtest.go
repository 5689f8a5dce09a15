package baktest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/internal/series"
	"github.com/Alias1177/MoexSignal/internal/trading/engine"
	"github.com/Alias1177/MoexSignal/internal/trading/risk"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

// DefaultInitialBalance is the synthetic paper balance of a replay
const DefaultInitialBalance = 100000.0

// Options configures a replay
type Options struct {
	InstrumentID   string
	InitialBalance float64
	WindowSize     int
	Risk           risk.Params
	// Forecaster is optional; it must not have been trained on the replayed history
	Forecaster engine.Forecaster
}

// Report is a replay outcome with its trade log
type Report struct {
	Result      models.BacktestResult
	FinalCash   float64
	OpenLot     int64
	MaxDrawdown float64
	Trades      []models.TradeRecord
}

// Run replays history through the live decision rule and returns net profit and trade count
func Run(history []models.Candle, rule strategy.Rule, opts Options) models.BacktestResult {
	return Replay(history, rule, opts).Result
}

// Replay walks the history candle by candle with the same engine used in live
// trading. Fills happen at the candle close. The result depends only on the input.
func Replay(history []models.Candle, rule strategy.Rule, opts Options) Report {
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = DefaultInitialBalance
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = series.DefaultCapacity
	}
	if opts.Risk == (risk.Params{}) {
		opts.Risk = risk.DefaultParams()
	}

	logger := log.With().Str("component", "backtest").Str("ticker", opts.InstrumentID).Logger()

	eng := engine.New(rule, opts.Risk, opts.Forecaster)
	window := series.NewPriceSeries(opts.WindowSize)
	lookback := rule.Lookback()

	// Виртуальный баланс счета
	cash := opts.InitialBalance
	var position *models.Position
	var held int64

	report := Report{}
	highWaterMark := cash
	lastClose := 0.0

	for i, candle := range history {
		if err := window.Add(candle); err != nil {
			logger.Debug().Err(err).Int("index", i).Msg("Skipping candle")
			continue
		}
		lastClose = candle.Close

		if window.Len() < lookback {
			continue
		}

		out := eng.Evaluate(engine.Input{
			InstrumentID: opts.InstrumentID,
			Window:       window.Candles(),
			Position:     position,
			Balance:      cash,
			Holdings:     &held,
		})
		position = out.Position

		decision := out.Decision
		if decision.Action != models.ActionHold {
			fill := models.Fill{
				OrderID:  fmt.Sprintf("BT-%d", i),
				Price:    decision.Price,
				Quantity: decision.Quantity,
				Time:     candle.Timestamp,
			}
			total := fill.Price * float64(fill.Quantity)

			switch decision.Action {
			case models.ActionBuy:
				cash -= total
				held += fill.Quantity
			case models.ActionSell:
				cash += total
				held -= fill.Quantity
			}
			position = eng.Apply(position, decision, fill)

			report.Trades = append(report.Trades, models.TradeRecord{
				ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d/%s", opts.InstrumentID, candle.Timestamp.UnixNano(), decision.Action))),
				InstrumentID: opts.InstrumentID,
				Action:       decision.Action,
				Price:        fill.Price,
				Quantity:     fill.Quantity,
				Total:        total,
				Reason:       decision.Reason,
				Timestamp:    fill.Time,
			})

			logger.Debug().
				Str("action", string(decision.Action)).
				Int64("quantity", fill.Quantity).
				Float64("price", fill.Price).
				Str("reason", decision.Reason).
				Msg("Backtest trade")
		}

		// Отслеживаем эквити и просадку
		equity := cash + float64(held)*candle.Close
		if equity > highWaterMark {
			highWaterMark = equity
		} else if drawdown := (highWaterMark - equity) / highWaterMark; drawdown > report.MaxDrawdown {
			report.MaxDrawdown = drawdown
		}
	}

	// открытый лот оцениваем по последнему закрытию
	report.FinalCash = cash
	report.OpenLot = held
	report.Result = models.BacktestResult{
		NetProfit:  cash + float64(held)*lastClose - opts.InitialBalance,
		TradeCount: len(report.Trades),
	}

	return report
}

// Gate reports whether a backtest result allows new entries
func Gate(result models.BacktestResult, minProfit float64) bool {
	return result.NetProfit >= minProfit
}
