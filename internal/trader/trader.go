// Package trader runs the decision loop: every closed candle is pushed into
// the rolling cache, indicators are recomputed, the evaluator decides, and an
// entry decision is handed to the order lifecycle controller. One cycle runs
// to completion before the next candle is read.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/execution"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/logger"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/metrics"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/ringbuf"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
)

// Executor runs the order lifecycle of an entry decision.
type Executor interface {
	Execute(ctx context.Context, d strategy.Decision) *execution.Outcome
}

// Config holds the loop parameters.
type Config struct {
	Symbol       string
	Interval     string
	RiskAmount   float64
	HistoryLimit int // klines requested at startup
	RecentTrades int // groups read from the ledger every cycle
}

// Deps are the collaborators of a Trader. Metrics, Health, OnCandle and
// Clock are optional.
type Deps struct {
	Cache     *ringbuf.Ring
	Engine    *indicator.Engine
	Evaluator *strategy.Evaluator
	Executor  Executor
	Risk      model.RiskSource
	Ledger    model.TradeLedger

	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	OnCandle func(c model.Candle)
	Clock    func() time.Time // defaults to time.Now; backtests pass candle time
	Log      *slog.Logger
}

// Trader is the explicit context of one instrument's decision loop.
type Trader struct {
	cfg Config
	Deps
	log *slog.Logger
	now func() time.Time
}

// Report summarises one cycle.
type Report struct {
	Candle     model.Candle
	Indicators indicator.Snapshot
	RiskRatio  float64
	Decision   strategy.Decision
	Outcome    *execution.Outcome // nil unless an entry was attempted
	Err        error              // cycle skipped because a collaborator failed
}

// New validates the dependencies and builds a Trader.
func New(cfg Config, d Deps) (*Trader, error) {
	switch {
	case d.Cache == nil:
		return nil, errors.New("trader: nil cache")
	case d.Engine == nil:
		return nil, errors.New("trader: nil indicator engine")
	case d.Evaluator == nil:
		return nil, errors.New("trader: nil evaluator")
	case d.Executor == nil:
		return nil, errors.New("trader: nil executor")
	case d.Risk == nil:
		return nil, errors.New("trader: nil risk source")
	case d.Ledger == nil:
		return nil, errors.New("trader: nil ledger")
	}
	if cfg.RecentTrades <= 0 {
		cfg.RecentTrades = 20
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Trader{
		cfg:  cfg,
		Deps: d,
		log:  log.With(slog.String("symbol", cfg.Symbol), slog.String("interval", cfg.Interval)),
		now:  now,
	}, nil
}

// Seed loads recent history into the cache. Only candles already closed are
// admitted; the forming one arrives later through the stream.
func (t *Trader) Seed(ctx context.Context, src model.HistorySource) (int, error) {
	candles, err := src.FetchHistory(ctx, t.cfg.Symbol, t.cfg.Interval, t.cfg.HistoryLimit)
	if err != nil {
		return 0, fmt.Errorf("seed history: %w", err)
	}
	n := t.Cache.Seed(candles, t.now())
	t.log.Info("cache seeded",
		slog.Int("fetched", len(candles)),
		slog.Int("admitted", n),
		slog.Int("cache_len", t.Cache.Len()),
		slog.Int("cache_cap", t.Cache.Cap()))
	return n, nil
}

// Run consumes closed candles until ctx is cancelled or the stream ends.
func (t *Trader) Run(ctx context.Context, stream model.CandleStream) error {
	ch, err := stream.Subscribe(ctx, t.cfg.Symbol, t.cfg.Interval)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if t.Health != nil {
		t.Health.SetWSConnected(true)
	}
	t.log.Info("decision loop started")

	for {
		select {
		case <-ctx.Done():
			t.log.Info("decision loop stopped")
			return nil
		case c, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("candle stream closed")
			}
			t.Cycle(ctx, c)
		}
	}
}

// Cycle processes one closed candle.
func (t *Trader) Cycle(ctx context.Context, c model.Candle) Report {
	start := t.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(t.cfg.Symbol, c.OpenTime))
	log := t.log.With(logger.LogWithTrace(ctx)...)

	if t.OnCandle != nil {
		t.OnCandle(c)
	}
	rep := t.cycle(ctx, log, c)

	if m := t.Metrics; m != nil {
		m.CyclesTotal.Inc()
		m.CycleDur.Observe(t.now().Sub(start).Seconds())
		if c.CloseTime > 0 {
			m.CandleLag.Set(start.Sub(time.UnixMilli(c.CloseTime)).Seconds())
		}
	}
	if t.Health != nil {
		t.Health.ObserveCandle(time.UnixMilli(c.CloseTime), t.Cache.Len(), t.Cache.Cap())
	}
	return rep
}

func (t *Trader) cycle(ctx context.Context, log *slog.Logger, c model.Candle) Report {
	rep := Report{Candle: c}

	if t.Cache.Push(c) && t.Metrics != nil {
		t.Metrics.CacheEvictions.Inc()
	}
	log.Info("candle closed",
		slog.Int64("open_time", c.OpenTime),
		slog.Float64("close", c.Close),
		slog.Float64("volume", c.Volume),
		slog.Int("cache_len", t.Cache.Len()))

	rep.Indicators = t.Engine.Compute(t.Cache)
	t.logIndicators(log, rep.Indicators)

	in := strategy.Input{
		Close:      c.Close,
		Indicators: rep.Indicators,
		Now:        t.now(),
	}
	if closes, ok := t.Cache.LastNCloses(2); ok {
		in.PrevClose, in.HasPrev = closes[0], true
	}

	// Readiness is decided before any network call.
	if rep.Indicators.Ready() {
		risk, err := t.Risk.PortfolioRisk(ctx, t.cfg.RiskAmount)
		if err != nil {
			rep.Err = fmt.Errorf("portfolio risk: %w", err)
			log.Error("cycle skipped", slog.String("error", rep.Err.Error()))
			return rep
		}
		rep.RiskRatio = risk
		in.RiskRatio = risk
		log.Info("portfolio risk", slog.Float64("risk_pct", risk))
		if t.Metrics != nil {
			t.Metrics.RiskRatio.Set(risk)
		}

		trades, err := t.Ledger.RecentTrades(ctx, t.cfg.RecentTrades)
		if err != nil {
			rep.Err = fmt.Errorf("recent trades: %w", err)
			log.Error("cycle skipped", slog.String("error", rep.Err.Error()))
			return rep
		}
		in.Eligibility = strategy.Eligibility(trades)
	}

	rep.Decision = t.Evaluator.Decide(in)
	d := rep.Decision
	if t.Metrics != nil {
		t.Metrics.DecisionsTotal.WithLabelValues(string(d.Direction), string(d.Reason)).Inc()
	}
	log.Info("decision",
		slog.String("direction", string(d.Direction)),
		slog.String("reason", string(d.Reason)),
		slog.Float64("qty", d.Quantity),
		slog.Int("open_trades", in.Eligibility.OpenTrades),
		slog.Float64("last_closed_pnl", in.Eligibility.LastClosedPnL))
	if !d.Entry() {
		return rep
	}

	rep.Outcome = t.Executor.Execute(ctx, d)
	o := rep.Outcome
	if t.Metrics != nil {
		t.Metrics.Lifecycles.WithLabelValues(string(o.State)).Inc()
	}
	if t.Health != nil {
		t.Health.SetLastOutcome(string(o.State))
	}
	log.Info("lifecycle finished",
		slog.Int64("group_id", o.GroupID),
		slog.String("state", string(o.State)),
		slog.Float64("entry_price", o.EntryPrice),
		slog.Bool("protected", o.Protected()))
	return rep
}

func (t *Trader) logIndicators(log *slog.Logger, s indicator.Snapshot) {
	attrs := []any{}
	if s.Band != nil {
		attrs = append(attrs,
			slog.Float64("upper", s.Band.Upper),
			slog.Float64("mean", s.Band.Mean),
			slog.Float64("lower", s.Band.Lower))
		if t.Metrics != nil {
			t.Metrics.Band.WithLabelValues("upper").Set(s.Band.Upper)
			t.Metrics.Band.WithLabelValues("mean").Set(s.Band.Mean)
			t.Metrics.Band.WithLabelValues("lower").Set(s.Band.Lower)
		}
	}
	if s.Oscillator != nil {
		attrs = append(attrs, slog.Float64("oscillator", *s.Oscillator))
		if t.Metrics != nil {
			t.Metrics.Oscillator.Set(*s.Oscillator)
		}
	}
	if s.RelativeVolume != nil {
		attrs = append(attrs, slog.Float64("relative_volume", *s.RelativeVolume))
		if t.Metrics != nil {
			t.Metrics.RelativeVolume.Set(*s.RelativeVolume)
		}
	}
	if !s.Ready() {
		log.Info("indicators not ready", append(attrs, slog.Int("cache_len", t.Cache.Len()))...)
		return
	}
	log.Info("indicators", attrs...)
}
