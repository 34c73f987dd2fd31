package parking

import "math"

// DefaultBasePrice is the configured flat base price per quote.
const DefaultBasePrice = 10.0

// Price combines occupancy, local hour, weather and congestion into a price.
//
// Every surcharge is computed against the base price, never against the
// running total, and all surcharges are additive, so the result does not
// depend on rule evaluation order:
//
//	occupancy rate > 0.7            +20% of base
//	local hour in [8,10] or [17,19] +15% of base
//	rainy or snowy weather          +10% of base
//	jam factor in [2,4)             +10% of base
//	jam factor >= 4                 +20% of base
//
// There is no cap: all conditions holding at once yields 165% of base, which
// is intended. The result is rounded to 2 decimal places.
func Price(basePrice, occupancyRate float64, localHour int, condition Condition, jamFactor float64) float64 {
	price := basePrice

	if occupancyRate > 0.7 {
		price += basePrice * 0.20
	}
	if (localHour >= 8 && localHour <= 10) || (localHour >= 17 && localHour <= 19) {
		price += basePrice * 0.15
	}
	if condition == ConditionRain || condition == ConditionSnow {
		price += basePrice * 0.10
	}
	switch {
	case jamFactor >= 4:
		price += basePrice * 0.20
	case jamFactor >= 2:
		price += basePrice * 0.10
	}

	return math.Round(price*100) / 100
}
