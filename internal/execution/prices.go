package execution

import (
	"github.com/shopspring/decimal"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

var hundred = decimal.NewFromInt(100)

// pctOf returns price*pct/100.
func pctOf(price, pct float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(pct)).Div(hundred)
}

// roundPrice rounds v to precision decimals.
func roundPrice(v float64, precision int32) float64 {
	return decimal.NewFromFloat(v).Round(precision).InexactFloat64()
}

// StopPrice is entry minus (LONG) or plus (SHORT) stopLossPct percent.
func StopPrice(dir model.Direction, entry, stopLossPct float64, precision int32) float64 {
	e := decimal.NewFromFloat(entry)
	off := pctOf(entry, stopLossPct)
	if dir == model.DirectionShort {
		return e.Add(off).Round(precision).InexactFloat64()
	}
	return e.Sub(off).Round(precision).InexactFloat64()
}

// Breakeven returns the price at which fees are recovered and the threshold
// that, once crossed, lets the stop manager move the stop to that price.
// LONG: price = entry + entry*fee/100, threshold = price + buffer.
// SHORT: price = entry - entry*fee/100, threshold = price - buffer.
func Breakeven(dir model.Direction, entry, feePct, buffer float64, precision int32) (price, threshold float64) {
	e := decimal.NewFromFloat(entry)
	off := pctOf(entry, feePct)
	buf := decimal.NewFromFloat(buffer)

	var p, th decimal.Decimal
	if dir == model.DirectionShort {
		p = e.Sub(off).Round(precision)
		th = p.Sub(buf)
	} else {
		p = e.Add(off).Round(precision)
		th = p.Add(buf)
	}
	return p.InexactFloat64(), th.InexactFloat64()
}
