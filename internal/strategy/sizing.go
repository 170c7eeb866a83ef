package strategy

import "github.com/shopspring/decimal"

// Notional is the position value for which a stop-loss plus fees costs
// exactly RiskAmount: riskAmount / ((stopLossPct + feePct) / 100).
func (s Sizing) Notional() float64 {
	move := s.StopLossPct + s.FeePct
	if move <= 0 {
		return 0
	}
	return s.RiskAmount / (move / 100)
}

// Quantity converts the notional into base units at price, rounded to
// QtyPrecision decimals.
func (s Sizing) Quantity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(s.Notional() / price).Round(s.QtyPrecision)
	return qty.InexactFloat64()
}
