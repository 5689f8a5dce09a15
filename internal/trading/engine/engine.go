package engine

import (
	"fmt"

	"github.com/Alias1177/MoexSignal/internal/calculate"
	"github.com/Alias1177/MoexSignal/internal/trading/risk"
	"github.com/Alias1177/MoexSignal/internal/trading/strategy"
	"github.com/Alias1177/MoexSignal/models"
)

// Forecaster estimates the next close for an instrument. ok is false when
// there is no trained model, in which case predictor conditions are skipped.
type Forecaster interface {
	Predict(instrumentID string, window []models.Candle) (float64, bool)
}

// Input is everything one evaluation needs. The engine keeps no state
// between calls: the caller owns the position and passes it in.
type Input struct {
	InstrumentID string
	Window       []models.Candle
	Position     *models.Position
	Balance      float64
	// Holdings is the broker-reported quantity, nil when unknown
	Holdings *int64
	// EntryBlocked suppresses new entries; exits are still evaluated
	EntryBlocked bool
}

// Output carries the decision and the position after trailing updates
type Output struct {
	Decision models.Decision
	Position *models.Position
	Snapshot models.IndicatorSnapshot
}

// Engine turns a candle window into a buy, sell or hold decision
type Engine struct {
	rule       strategy.Rule
	risk       risk.Params
	forecaster Forecaster
}

// New creates an engine. forecaster may be nil.
func New(rule strategy.Rule, riskParams risk.Params, forecaster Forecaster) *Engine {
	return &Engine{
		rule:       rule,
		risk:       riskParams,
		forecaster: forecaster,
	}
}

func (e *Engine) Rule() strategy.Rule {
	return e.rule
}

// Evaluate runs one tick. While long it updates the highest price, trails the
// stop and then checks the exit; while flat it checks the entry and sizes it.
func (e *Engine) Evaluate(in Input) Output {
	position := in.Position.Clone()
	if position != nil && position.Quantity <= 0 {
		position = nil
	}

	out := Output{
		Position: position,
		Decision: models.Decision{
			InstrumentID: in.InstrumentID,
			Action:       models.ActionHold,
		},
	}

	if len(in.Window) == 0 {
		out.Decision.Reason = "no data"
		return out
	}

	snapshot := calculate.CalculateAllIndicators(in.Window, &e.rule.Indicators)
	out.Snapshot = snapshot
	out.Decision.Price = snapshot.Price
	out.Decision.ATR = snapshot.ATR

	predicted := e.predict(in)

	if position != nil {
		if snapshot.Price > position.HighestPriceSinceEntry {
			position.HighestPriceSinceEntry = snapshot.Price
		}
		position.StopLoss = risk.TrailStop(
			position.StopLoss,
			position.HighestPriceSinceEntry,
			snapshot.ATR,
			e.risk.TrailATRMult,
		)

		exit, reason := e.rule.Exit(snapshot, position, predicted)
		out.Decision.Reason = reason
		if !exit {
			return out
		}

		qty := risk.SellQuantity(position.Quantity, e.risk.MaxSellPerCycle)
		if in.Holdings != nil && *in.Holdings < qty {
			qty = *in.Holdings
		}
		if qty <= 0 {
			out.Decision.Reason = fmt.Sprintf("%s, nothing to sell", reason)
			return out
		}

		out.Decision.Action = models.ActionSell
		out.Decision.Quantity = qty
		return out
	}

	if in.EntryBlocked {
		out.Decision.Reason = "entries blocked by backtest"
		return out
	}

	entry, reason := e.rule.Entry(snapshot, predicted)
	out.Decision.Reason = reason
	if !entry {
		return out
	}

	qty := risk.PositionSize(in.Balance, snapshot.Price, e.risk.BalanceFraction, e.risk.MaxLot)
	if qty <= 0 {
		out.Decision.Reason = fmt.Sprintf("%s, balance %.2f too small", reason, in.Balance)
		return out
	}

	out.Decision.Action = models.ActionBuy
	out.Decision.Quantity = qty
	return out
}

func (e *Engine) predict(in Input) *float64 {
	if e.forecaster == nil {
		return nil
	}
	v, ok := e.forecaster.Predict(in.InstrumentID, in.Window)
	if !ok {
		return nil
	}
	return &v
}

// Apply folds a confirmed fill into the position. A buy opens the position
// with ATR based levels; a sell reduces it and returns nil once it is closed.
func (e *Engine) Apply(position *models.Position, decision models.Decision, fill models.Fill) *models.Position {
	position = position.Clone()
	if fill.Quantity <= 0 {
		return position
	}

	switch decision.Action {
	case models.ActionBuy:
		if position == nil || position.Quantity <= 0 {
			stop, take := risk.InitialLevels(fill.Price, decision.ATR, e.risk.StopATRMult, e.risk.TakeATRMult)
			return &models.Position{
				InstrumentID:           decision.InstrumentID,
				EntryPrice:             fill.Price,
				Quantity:               fill.Quantity,
				StopLoss:               stop,
				TakeProfit:             take,
				HighestPriceSinceEntry: fill.Price,
				OpenedAt:               fill.Time,
			}
		}

		// докупка: средняя цена входа, уровни остаются прежними
		total := position.EntryPrice*float64(position.Quantity) + fill.Price*float64(fill.Quantity)
		position.Quantity += fill.Quantity
		position.EntryPrice = total / float64(position.Quantity)
		if fill.Price > position.HighestPriceSinceEntry {
			position.HighestPriceSinceEntry = fill.Price
		}
		return position

	case models.ActionSell:
		if position == nil {
			return nil
		}
		position.Quantity -= fill.Quantity
		if position.Quantity <= 0 {
			return nil
		}
		return position
	}

	return position
}
