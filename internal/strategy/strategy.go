// Package strategy decides whether the latest closed candle is an entry.
//
// The Evaluator runs a fixed sequence of gates (indicator readiness, portfolio
// risk, cooldown after a loss, open-trade cap) followed by the entry condition
// of the configured Variant, and sizes the position so that a full stop-loss
// plus fees costs exactly the configured risk amount.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// Variant selects the entry condition.
type Variant string

const (
	// VariantThresholdTouch enters when price closes outside the band while
	// the oscillator confirms the extreme.
	VariantThresholdTouch Variant = "threshold_touch"

	// VariantCrossback enters when price closes back inside the band after
	// having closed outside it on the previous candle.
	VariantCrossback Variant = "crossback"
)

// ParseVariant maps a config string onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantThresholdTouch, VariantCrossback:
		return v, nil
	default:
		return "", fmt.Errorf("unknown strategy variant %q", s)
	}
}

// VariantParams are the parameters attached to a Variant.
// A zero Cooldown or MaxOpenTrades disables that gate.
type VariantParams struct {
	OscLow        float64
	OscHigh       float64
	Cooldown      time.Duration
	MaxOpenTrades int
}

// DefaultParams returns the parameters each variant runs with out of the box.
func DefaultParams(v Variant) VariantParams {
	switch v {
	case VariantCrossback:
		return VariantParams{OscLow: 30, OscHigh: 70, Cooldown: 300 * time.Second, MaxOpenTrades: 1}
	default:
		return VariantParams{OscLow: 30, OscHigh: 70}
	}
}

// Sizing converts the risk budget into an order quantity.
type Sizing struct {
	RiskAmount   float64 // quote currency lost when the stop is hit
	StopLossPct  float64 // stop distance, percent of entry
	FeePct       float64 // round-trip fee, percent of notional
	QtyPrecision int32   // decimals kept on the base quantity
}

// Config is the evaluator configuration.
type Config struct {
	Variant       Variant
	Params        VariantParams
	RiskThreshold float64 // max portfolio risk percent before new entries are blocked
	Sizing        Sizing
}

// Reason explains a Decision.
type Reason string

const (
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonRiskLimit        Reason = "portfolio_risk_limit"
	ReasonCooldown         Reason = "cooldown_after_loss"
	ReasonMaxOpenTrades    Reason = "max_open_trades"
	ReasonWithinBands      Reason = "within_bands"
	ReasonZeroQuantity     Reason = "zero_quantity"
	ReasonLongEntry        Reason = "long_entry"
	ReasonShortEntry       Reason = "short_entry"
)

// Input is everything one decision cycle needs.
type Input struct {
	Close       float64
	PrevClose   float64
	HasPrev     bool
	Indicators  indicator.Snapshot
	RiskRatio   float64
	Eligibility model.EligibilityState
	Now         time.Time
}

// Decision is the evaluator output.
type Decision struct {
	Direction model.Direction `json:"direction"`
	Quantity  float64         `json:"quantity"`
	Notional  float64         `json:"notional"`
	Reason    Reason          `json:"reason"`
	Close     float64         `json:"close"`
	Band      indicator.Band  `json:"band"`
}

// Entry reports whether the decision opens a position.
func (d Decision) Entry() bool {
	return d.Direction == model.DirectionLong || d.Direction == model.DirectionShort
}
