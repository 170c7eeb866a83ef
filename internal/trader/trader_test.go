package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/execution"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/logger"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/metrics"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/ringbuf"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
)

var base = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

const minute = int64(60_000)

// ── fakes ──

type fakeRisk struct {
	ratio float64
	err   error
	calls int
}

func (f *fakeRisk) PortfolioRisk(context.Context, float64) (float64, error) {
	f.calls++
	return f.ratio, f.err
}

type fakeLedger struct {
	trades []model.TradeSummary
	err    error
}

func (f *fakeLedger) AppendRecord(context.Context, model.TradeRecord) error { return nil }

func (f *fakeLedger) RecentTrades(context.Context, int) ([]model.TradeSummary, error) {
	return f.trades, f.err
}

type fakeExecutor struct {
	decisions []strategy.Decision
	traceIDs  []string
}

func (f *fakeExecutor) Execute(ctx context.Context, d strategy.Decision) *execution.Outcome {
	f.decisions = append(f.decisions, d)
	f.traceIDs = append(f.traceIDs, logger.TraceID(ctx))
	return &execution.Outcome{GroupID: 1, Direction: d.Direction, State: execution.StateComplete}
}

type fakeHistory struct{ candles []model.Candle }

func (f fakeHistory) FetchHistory(context.Context, string, string, int) ([]model.Candle, error) {
	return f.candles, nil
}

type fakeStream struct{ ch chan model.Candle }

func (f fakeStream) Subscribe(context.Context, string, string) (<-chan model.Candle, error) {
	return f.ch, nil
}

// ── helpers ──

func candle(i int, close float64) model.Candle {
	open := base.UnixMilli() + int64(i)*minute
	return model.Candle{Symbol: "SOLUSDT", OpenTime: open, CloseTime: open + minute - 1,
		Open: close, High: close, Low: close, Close: close, Volume: 10}
}

// oscillating returns n closed candles alternating 100/101.
func oscillating(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := 100.0
		if i%2 == 1 {
			c = 101
		}
		out[i] = candle(i, c)
	}
	return out
}

type harness struct {
	tr   *Trader
	risk *fakeRisk
	led  *fakeLedger
	exec *fakeExecutor
	reg  *prometheus.Registry
}

func newHarness(t *testing.T, v strategy.Variant) *harness {
	t.Helper()
	h := &harness{risk: &fakeRisk{ratio: 1}, led: &fakeLedger{}, exec: &fakeExecutor{}, reg: prometheus.NewRegistry()}
	tr, err := New(Config{Symbol: "SOLUSDT", Interval: "1m", RiskAmount: 2, HistoryLimit: 150}, Deps{
		Cache:  ringbuf.New(100),
		Engine: indicator.NewEngine(indicator.Config{BandPeriod: 10, BandWidth: 2, OscPeriod: 3, Lookback: 100, VolumePeriod: 3}),
		Evaluator: strategy.NewEvaluator(strategy.Config{
			Variant:       v,
			Params:        strategy.DefaultParams(v),
			RiskThreshold: 20,
			Sizing:        strategy.Sizing{RiskAmount: 2, StopLossPct: 1.1, FeePct: 0.1, QtyPrecision: 2},
		}),
		Executor: h.exec,
		Risk:     h.risk,
		Ledger:   h.led,
		Metrics:  metrics.NewMetrics(h.reg),
		Health:   metrics.NewHealthStatus(),
	})
	if err != nil {
		t.Fatalf("new trader: %v", err)
	}
	tr.now = func() time.Time { return base.Add(time.Hour) }
	h.tr = tr
	return h
}

// ── tests ──

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestSeed_AdmitsOnlyClosedCandles(t *testing.T) {
	h := newHarness(t, strategy.VariantThresholdTouch)
	hist := oscillating(11)
	forming := candle(60, 100) // closes at base+61m, after now
	hist = append(hist, forming)

	n, err := h.tr.Seed(context.Background(), fakeHistory{hist})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 11 || h.tr.Cache.Len() != 11 {
		t.Fatalf("expected 11 admitted candles, got %d (len %d)", n, h.tr.Cache.Len())
	}
}

func TestSeed_UsesInjectedClock(t *testing.T) {
	hist := oscillating(11)
	at := time.UnixMilli(hist[4].CloseTime + 1)
	tr, err := New(Config{Symbol: "SOLUSDT", Interval: "1m", HistoryLimit: 150}, Deps{
		Cache:     ringbuf.New(100),
		Engine:    indicator.NewEngine(indicator.Config{}),
		Evaluator: strategy.NewEvaluator(strategy.Config{}),
		Executor:  &fakeExecutor{},
		Risk:      &fakeRisk{},
		Ledger:    &fakeLedger{},
		Clock:     func() time.Time { return at },
	})
	if err != nil {
		t.Fatalf("new trader: %v", err)
	}

	n, err := tr.Seed(context.Background(), fakeHistory{hist})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected candles closed before the injected clock only, got %d", n)
	}
}

func TestCycle_LongEntry(t *testing.T) {
	h := newHarness(t, strategy.VariantThresholdTouch)
	h.tr.Seed(context.Background(), fakeHistory{oscillating(11)})

	var seen []model.Candle
	h.tr.OnCandle = func(c model.Candle) { seen = append(seen, c) }

	drop := candle(11, 80)
	rep := h.tr.Cycle(context.Background(), drop)

	if rep.Err != nil {
		t.Fatalf("unexpected error: %v", rep.Err)
	}
	if rep.Decision.Direction != model.DirectionLong {
		t.Fatalf("expected LONG, got %s (%s)", rep.Decision.Direction, rep.Decision.Reason)
	}
	if rep.Decision.Quantity != 2.08 {
		t.Fatalf("expected qty 2.08, got %v", rep.Decision.Quantity)
	}
	if rep.Outcome == nil || rep.Outcome.State != execution.StateComplete {
		t.Fatalf("expected a complete outcome, got %+v", rep.Outcome)
	}
	if len(h.exec.decisions) != 1 {
		t.Fatalf("expected one execution, got %d", len(h.exec.decisions))
	}
	if want := logger.GenerateTraceID("SOLUSDT", drop.OpenTime); h.exec.traceIDs[0] != want {
		t.Fatalf("expected trace id %q, got %q", want, h.exec.traceIDs[0])
	}
	if len(seen) != 1 || seen[0] != drop {
		t.Fatal("OnCandle not called with the cycle candle")
	}

	m := h.tr.Metrics
	if got := testutil.ToFloat64(m.CyclesTotal); got != 1 {
		t.Fatalf("expected 1 cycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.Lifecycles.WithLabelValues("COMPLETE")); got != 1 {
		t.Fatalf("expected 1 complete lifecycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.RiskRatio); got != 1 {
		t.Fatalf("expected risk gauge 1, got %v", got)
	}
}

func TestCycle_NotReadySkipsNetwork(t *testing.T) {
	h := newHarness(t, strategy.VariantThresholdTouch)

	rep := h.tr.Cycle(context.Background(), candle(0, 100))
	if rep.Decision.Reason != strategy.ReasonInsufficientData {
		t.Fatalf("expected insufficient data, got %s", rep.Decision.Reason)
	}
	if h.risk.calls != 0 {
		t.Fatalf("risk source must not be called before warm-up, got %d calls", h.risk.calls)
	}
}

func TestCycle_CollaboratorErrorsSkipCycle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"risk source", func(h *harness) { h.risk.err = errors.New("timeout") }},
		{"ledger", func(h *harness) { h.led.err = errors.New("locked") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, strategy.VariantThresholdTouch)
			h.tr.Seed(context.Background(), fakeHistory{oscillating(11)})
			tt.setup(h)

			rep := h.tr.Cycle(context.Background(), candle(11, 80))
			if rep.Err == nil {
				t.Fatal("expected cycle error")
			}
			if len(h.exec.decisions) != 0 {
				t.Fatal("executor must not run on a skipped cycle")
			}
			if h.tr.Cache.Len() != 12 {
				t.Fatalf("candle must still be cached, len %d", h.tr.Cache.Len())
			}
		})
	}
}

func TestCycle_GatesBlockEntry(t *testing.T) {
	tests := []struct {
		name   string
		v      strategy.Variant
		setup  func(h *harness)
		reason strategy.Reason
	}{
		{"risk limit", strategy.VariantThresholdTouch, func(h *harness) { h.risk.ratio = 20 }, strategy.ReasonRiskLimit},
		{"cooldown after loss", strategy.VariantCrossback, func(h *harness) {
			h.led.trades = []model.TradeSummary{{GroupID: 3, RealizedPnL: -2, Closed: true, ExitTime: base.Add(59 * time.Minute)}}
		}, strategy.ReasonCooldown},
		{"open trades", strategy.VariantCrossback, func(h *harness) {
			h.led.trades = []model.TradeSummary{{GroupID: 4}, {GroupID: 3}}
		}, strategy.ReasonMaxOpenTrades},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.v)
			h.tr.Seed(context.Background(), fakeHistory{oscillating(11)})
			tt.setup(h)

			rep := h.tr.Cycle(context.Background(), candle(11, 80))
			if rep.Decision.Reason != tt.reason {
				t.Fatalf("expected %s, got %s", tt.reason, rep.Decision.Reason)
			}
			if len(h.exec.decisions) != 0 {
				t.Fatal("executor must not run when a gate blocks")
			}
		})
	}
}

func TestRun_ProcessesStreamInOrder(t *testing.T) {
	h := newHarness(t, strategy.VariantThresholdTouch)
	ch := make(chan model.Candle, 3)
	for i, c := range []float64{100, 101, 100} {
		ch <- candle(i, c)
	}
	close(ch)

	err := h.tr.Run(context.Background(), fakeStream{ch})
	if err == nil {
		t.Fatal("expected error when the stream closes on its own")
	}
	if h.tr.Cache.Len() != 3 {
		t.Fatalf("expected 3 cached candles, got %d", h.tr.Cache.Len())
	}
	last, _ := h.tr.Cache.Last()
	if last.Close != 100 || last.OpenTime != candle(2, 0).OpenTime {
		t.Fatalf("unexpected last candle %+v", last)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, strategy.VariantThresholdTouch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.tr.Run(ctx, fakeStream{make(chan model.Candle)}); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
}
