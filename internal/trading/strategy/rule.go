package strategy

import (
	"fmt"

	"github.com/Alias1177/MoexSignal/models"
)

// Params are the thresholds of the entry and exit rules
type Params struct {
	BuyRSI            float64 `json:"buy_rsi"`
	SellRSI           float64 `json:"sell_rsi"`
	PredictBuyMargin  float64 `json:"predict_buy_margin"`
	PredictSellMargin float64 `json:"predict_sell_margin"`
}

func DefaultParams() Params {
	return Params{
		BuyRSI:            30,
		SellRSI:           70,
		PredictBuyMargin:  1.02,
		PredictSellMargin: 0.98,
	}
}

// Rule is the single decision rule shared by live trading and backtests
type Rule struct {
	Params     Params
	Indicators models.IndicatorConfig
}

func DefaultRule() Rule {
	return Rule{
		Params:     DefaultParams(),
		Indicators: models.DefaultIndicatorConfig(),
	}
}

// Lookback is the number of candles the rule needs before it can enter
func (r Rule) Lookback() int {
	return r.Indicators.Lookback()
}

// Entry reports whether every bullish condition holds. The predictor
// condition is only part of the rule when predicted is set.
func (r Rule) Entry(s models.IndicatorSnapshot, predicted *float64) (bool, string) {
	if s.RSI == nil || s.MACDHistogram == nil || s.BollingerLower == nil {
		return false, "insufficient data"
	}

	if *s.RSI >= r.Params.BuyRSI {
		return false, fmt.Sprintf("RSI %.2f not below %.0f", *s.RSI, r.Params.BuyRSI)
	}
	if *s.MACDHistogram <= 0 {
		return false, fmt.Sprintf("MACD histogram %.4f not positive", *s.MACDHistogram)
	}
	if s.Price >= *s.BollingerLower {
		return false, fmt.Sprintf("price %.2f not below lower band %.2f", s.Price, *s.BollingerLower)
	}
	if predicted != nil && *predicted <= s.Price*r.Params.PredictBuyMargin {
		return false, fmt.Sprintf("predicted %.2f below target %.2f", *predicted, s.Price*r.Params.PredictBuyMargin)
	}

	reason := fmt.Sprintf("RSI %.2f, MACD histogram %.4f, price %.2f below lower band %.2f",
		*s.RSI, *s.MACDHistogram, s.Price, *s.BollingerLower)
	if predicted != nil {
		reason += fmt.Sprintf(", predicted %.2f", *predicted)
	}
	return true, reason
}

// Exit reports whether any exit condition holds for an open position.
// Stop and target checks do not need indicators.
func (r Rule) Exit(s models.IndicatorSnapshot, position *models.Position, predicted *float64) (bool, string) {
	if position != nil {
		if position.TakeProfit != nil && s.Price >= *position.TakeProfit {
			return true, fmt.Sprintf("take profit %.2f reached at %.2f", *position.TakeProfit, s.Price)
		}
		if position.StopLoss != nil && s.Price <= *position.StopLoss {
			return true, fmt.Sprintf("stop loss %.2f hit at %.2f", *position.StopLoss, s.Price)
		}
	}

	if s.RSI != nil && s.MACDHistogram != nil && s.BollingerUpper != nil &&
		*s.RSI > r.Params.SellRSI && *s.MACDHistogram < 0 && s.Price > *s.BollingerUpper {
		return true, fmt.Sprintf("RSI %.2f, MACD histogram %.4f, price %.2f above upper band %.2f",
			*s.RSI, *s.MACDHistogram, s.Price, *s.BollingerUpper)
	}

	if predicted != nil && *predicted < s.Price*r.Params.PredictSellMargin {
		return true, fmt.Sprintf("predicted %.2f below %.2f", *predicted, s.Price*r.Params.PredictSellMargin)
	}

	return false, "no exit condition"
}
