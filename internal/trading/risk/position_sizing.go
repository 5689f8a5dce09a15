package risk

import (
	"math"
)

// Params holds sizing and stop/target settings
type Params struct {
	BalanceFraction float64 `json:"balance_fraction"`
	MaxLot          int64   `json:"max_lot"`
	MaxSellPerCycle int64   `json:"max_sell_per_cycle"`
	StopATRMult     float64 `json:"stop_atr_mult"`
	TakeATRMult     float64 `json:"take_atr_mult"`
	TrailATRMult    float64 `json:"trail_atr_mult"`
}

// DefaultParams: 10% of balance, at most 10 units per order, stop at 2 ATR,
// target at 4 ATR, trailing distance 2 ATR
func DefaultParams() Params {
	return Params{
		BalanceFraction: 0.10,
		MaxLot:          10,
		MaxSellPerCycle: 10,
		StopATRMult:     2,
		TakeATRMult:     4,
		TrailATRMult:    2,
	}
}

// PositionSize returns min(floor(fraction*balance/price), maxLot), reduced so
// that quantity*price never exceeds balance
func PositionSize(balance, price, fraction float64, maxLot int64) int64 {
	if balance <= 0 || price <= 0 || fraction <= 0 {
		return 0
	}

	qty := int64(math.Floor(fraction * balance / price))
	if maxLot > 0 && qty > maxLot {
		qty = maxLot
	}

	// fraction above 1 must still not overdraw
	if affordable := int64(math.Floor(balance / price)); qty > affordable {
		qty = affordable
	}

	if qty < 0 {
		return 0
	}
	return qty
}

// InitialLevels returns stop = entry - stopMult*atr and take = entry + takeMult*atr.
// Without ATR there are no levels.
func InitialLevels(entry float64, atr *float64, stopMult, takeMult float64) (*float64, *float64) {
	if atr == nil {
		return nil, nil
	}
	stop := entry - stopMult*(*atr)
	take := entry + takeMult*(*atr)
	return &stop, &take
}

// TrailStop moves the stop up to highest - mult*atr. The stop never goes down,
// and a position opened without a stop does not get one.
func TrailStop(current *float64, highest float64, atr *float64, mult float64) *float64 {
	if current == nil {
		return nil
	}
	stop := *current
	if atr != nil {
		if candidate := highest - mult*(*atr); candidate > stop {
			stop = candidate
		}
	}
	return &stop
}

// SellQuantity caps one exit order at maxPerCycle; the rest is sold in later cycles
func SellQuantity(held, maxPerCycle int64) int64 {
	if held <= 0 {
		return 0
	}
	if maxPerCycle > 0 && held > maxPerCycle {
		return maxPerCycle
	}
	return held
}
