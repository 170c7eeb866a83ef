package strategy

import (
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// Evaluator turns one cycle's market state into a Decision. It holds no
// state between cycles.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator for cfg.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.Variant == "" {
		cfg.Variant = VariantThresholdTouch
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config { return e.cfg }

// Decide evaluates the gates in order and then the variant's entry condition.
func (e *Evaluator) Decide(in Input) Decision {
	none := func(r Reason) Decision {
		d := Decision{Direction: model.DirectionNone, Reason: r, Close: in.Close}
		if in.Indicators.Band != nil {
			d.Band = *in.Indicators.Band
		}
		return d
	}

	if !in.Indicators.Ready() {
		return none(ReasonInsufficientData)
	}
	if in.RiskRatio >= e.cfg.RiskThreshold {
		return none(ReasonRiskLimit)
	}
	if e.inCooldown(in) {
		return none(ReasonCooldown)
	}
	if limit := e.cfg.Params.MaxOpenTrades; limit > 0 && in.Eligibility.OpenTrades > limit {
		return none(ReasonMaxOpenTrades)
	}

	dir := e.entryDirection(in)
	if dir == model.DirectionNone {
		return none(ReasonWithinBands)
	}

	notional := e.cfg.Sizing.Notional()
	qty := e.cfg.Sizing.Quantity(in.Close)
	if qty <= 0 {
		return none(ReasonZeroQuantity)
	}

	reason := ReasonLongEntry
	if dir == model.DirectionShort {
		reason = ReasonShortEntry
	}
	return Decision{
		Direction: dir,
		Quantity:  qty,
		Notional:  notional,
		Reason:    reason,
		Close:     in.Close,
		Band:      *in.Indicators.Band,
	}
}

func (e *Evaluator) inCooldown(in Input) bool {
	cd := e.cfg.Params.Cooldown
	el := in.Eligibility
	if cd <= 0 || !el.HasClosedTrade || el.LastClosedPnL >= 0 {
		return false
	}
	return in.Now.Sub(el.LastClosedExitAt) < cd
}

func (e *Evaluator) entryDirection(in Input) model.Direction {
	band := *in.Indicators.Band
	osc := *in.Indicators.Oscillator
	p := e.cfg.Params

	switch e.cfg.Variant {
	case VariantCrossback:
		if !in.HasPrev {
			return model.DirectionNone
		}
		if in.PrevClose < band.Lower && in.Close > band.Lower && osc >= p.OscLow {
			return model.DirectionLong
		}
		if in.PrevClose > band.Upper && in.Close < band.Upper && osc < p.OscHigh {
			return model.DirectionShort
		}
	default:
		if in.Close <= band.Lower && osc <= p.OscLow {
			return model.DirectionLong
		}
		if in.Close >= band.Upper && osc >= p.OscHigh {
			return model.DirectionShort
		}
	}
	return model.DirectionNone
}
