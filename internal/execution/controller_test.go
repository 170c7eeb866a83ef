package execution

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/notification"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
)

// ── fakes ──

type placed struct {
	kind  model.OrderKind
	side  model.Side
	price float64
	limit float64
	qty   float64
}

type fakeGateway struct {
	mu        sync.Mutex
	orders    []placed
	entryErr  error
	stopErr   error
	targetErr error
	fill      float64
	fillOK    bool
	fillErr   error
	ackFill   float64
	polls     int
}

func (g *fakeGateway) PlaceMarketOrder(_ context.Context, _ string, side model.Side, qty float64) (model.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entryErr != nil {
		return model.OrderAck{}, g.entryErr
	}
	g.orders = append(g.orders, placed{kind: model.OrderKindEntry, side: side, qty: qty})
	return model.OrderAck{OrderID: "E1", FillPrice: g.ackFill}, nil
}

func (g *fakeGateway) PlaceStopOrder(_ context.Context, _ string, side model.Side, stop, qty float64) (model.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopErr != nil {
		return model.OrderAck{}, g.stopErr
	}
	g.orders = append(g.orders, placed{kind: model.OrderKindStop, side: side, price: stop, qty: qty})
	return model.OrderAck{OrderID: "S1"}, nil
}

func (g *fakeGateway) PlaceTargetOrder(_ context.Context, _ string, side model.Side, stop, limit, qty float64) (model.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.targetErr != nil {
		return model.OrderAck{}, g.targetErr
	}
	g.orders = append(g.orders, placed{kind: model.OrderKindTarget, side: side, price: stop, limit: limit, qty: qty})
	return model.OrderAck{OrderID: "T1"}, nil
}

func (g *fakeGateway) GetFillPrice(context.Context, string, string) (float64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	return g.fill, g.fillOK, g.fillErr
}

type fakeLedger struct {
	mu      sync.Mutex
	records []model.TradeRecord
	err     error
}

func (l *fakeLedger) AppendRecord(_ context.Context, rec model.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) RecentTrades(context.Context, int) ([]model.TradeSummary, error) {
	return nil, nil
}

type fakeSeq struct {
	next int64
	err  error
}

func (s *fakeSeq) NextGroupID(context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

type captureNotifier struct{ alerts []notification.Alert }

func (c *captureNotifier) Send(_ context.Context, a notification.Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

func testConfig() Config {
	return Config{
		Symbol:           "SOLUSDT",
		StopLossPct:      1.1,
		FeePct:           0.07,
		BreakevenBuffer:  0.05,
		PricePrecision:   2,
		FillPollInterval: time.Millisecond,
		FillTimeout:      20 * time.Millisecond,
	}
}

func longDecision() strategy.Decision {
	return strategy.Decision{
		Direction: model.DirectionLong,
		Quantity:  1.5,
		Reason:    strategy.ReasonLongEntry,
		Close:     99.5,
		Band:      indicator.Band{Mean: 104.567, Upper: 110, Lower: 99},
	}
}

func kinds(recs []model.TradeRecord) []model.OrderKind {
	out := make([]model.OrderKind, len(recs))
	for i, r := range recs {
		out[i] = r.Kind
	}
	return out
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("transitions: expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions: expected %v, got %v", want, got)
		}
		if i > 0 && !CanTransition(got[i-1], got[i]) {
			t.Fatalf("illegal transition %s → %s", got[i-1], got[i])
		}
	}
}

// ── tests ──

func TestExecute_CompleteLong(t *testing.T) {
	gw := &fakeGateway{fill: 100, fillOK: true}
	ledger := &fakeLedger{}
	n := &captureNotifier{}
	c := NewController(testConfig(), gw, ledger, &fakeSeq{next: 41}, n, nil)

	var hookOutcome *Outcome
	c.OnOutcome = func(o *Outcome) { hookOutcome = o }

	out := c.Execute(context.Background(), longDecision())

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.State != StateComplete || !out.Protected() {
		t.Fatalf("expected COMPLETE and protected, got %s", out.State)
	}
	assertStates(t, out.Transitions, StatePendingEntry, StateEntryFilled, StateProtectivePlaced, StateComplete)
	if out.GroupID != 42 {
		t.Fatalf("expected group 42, got %d", out.GroupID)
	}
	if out.EntryPrice != 100 || out.FillFallback {
		t.Fatalf("expected confirmed fill 100, got %v (fallback=%v)", out.EntryPrice, out.FillFallback)
	}
	if out.StopPrice != 98.9 {
		t.Fatalf("expected stop 98.9, got %v", out.StopPrice)
	}
	if out.TargetPrice != 104.57 {
		t.Fatalf("expected target 104.57, got %v", out.TargetPrice)
	}
	if out.BreakevenPrice != 100.07 {
		t.Fatalf("expected breakeven 100.07, got %v", out.BreakevenPrice)
	}
	if hookOutcome != out {
		t.Fatal("OnOutcome hook not called with the outcome")
	}
	if len(n.alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(n.alerts))
	}

	if len(gw.orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(gw.orders))
	}
	if gw.orders[0].side != model.SideBuy || gw.orders[1].side != model.SideSell || gw.orders[2].side != model.SideSell {
		t.Fatalf("unexpected sides: %+v", gw.orders)
	}
	if gw.orders[2].price != 104.57 || gw.orders[2].limit != 104.57 {
		t.Fatalf("target stop and limit must both equal the band mean, got %+v", gw.orders[2])
	}

	got := kinds(ledger.records)
	if len(got) != 3 || got[0] != model.OrderKindEntry || got[1] != model.OrderKindStop || got[2] != model.OrderKindTarget {
		t.Fatalf("expected ENTRY, STOP, TARGET records, got %v", got)
	}
	for _, r := range ledger.records {
		if r.GroupID != 42 {
			t.Fatalf("record %s has group %d", r.Kind, r.GroupID)
		}
	}
	stop := ledger.records[1]
	if stop.BreakevenPrice != 100.07 || stop.BreakevenThreshold != 100.12 {
		t.Fatalf("unexpected breakeven on STOP record: %+v", stop)
	}
	if ledger.records[2].BreakevenPrice != 0 {
		t.Fatal("breakeven fields belong on the STOP record only")
	}
}

func TestExecute_ShortSides(t *testing.T) {
	gw := &fakeGateway{fill: 100, fillOK: true}
	c := NewController(testConfig(), gw, &fakeLedger{}, &fakeSeq{}, nil, nil)

	d := longDecision()
	d.Direction = model.DirectionShort
	out := c.Execute(context.Background(), d)

	if out.State != StateComplete {
		t.Fatalf("expected COMPLETE, got %s (%v)", out.State, out.Err)
	}
	if gw.orders[0].side != model.SideSell || gw.orders[1].side != model.SideBuy {
		t.Fatalf("unexpected sides: %+v", gw.orders)
	}
	if out.StopPrice != 101.1 {
		t.Fatalf("expected stop 101.1, got %v", out.StopPrice)
	}
	if out.BreakevenPrice != 99.93 || out.BreakevenThreshold != 99.88 {
		t.Fatalf("unexpected breakeven %v/%v", out.BreakevenPrice, out.BreakevenThreshold)
	}
}

func TestExecute_EntryFailure(t *testing.T) {
	gw := &fakeGateway{entryErr: errors.New("margin is insufficient")}
	ledger := &fakeLedger{}
	n := &captureNotifier{}
	c := NewController(testConfig(), gw, ledger, &fakeSeq{}, n, nil)

	out := c.Execute(context.Background(), longDecision())

	if out.State != StateFailed {
		t.Fatalf("expected FAILED, got %s", out.State)
	}
	assertStates(t, out.Transitions, StatePendingEntry, StateFailed)
	if !errors.Is(out.Err, model.ErrOrderSubmission) {
		t.Fatalf("expected ErrOrderSubmission, got %v", out.Err)
	}
	if len(ledger.records) != 0 || len(gw.orders) != 0 {
		t.Fatalf("expected no records and no orders, got %d / %d", len(ledger.records), len(gw.orders))
	}
	if len(n.alerts) != 1 || n.alerts[0].Level != notification.AlertWarning {
		t.Fatalf("expected one warning alert, got %+v", n.alerts)
	}
}

func TestExecute_SequencerFailureSendsNothing(t *testing.T) {
	gw := &fakeGateway{}
	c := NewController(testConfig(), gw, &fakeLedger{}, &fakeSeq{err: errors.New("db locked")}, nil, nil)

	out := c.Execute(context.Background(), longDecision())
	if out.State != StateFailed || len(gw.orders) != 0 {
		t.Fatalf("expected FAILED without orders, got %s / %d", out.State, len(gw.orders))
	}
}

func TestExecute_RejectsNonEntry(t *testing.T) {
	gw := &fakeGateway{}
	c := NewController(testConfig(), gw, &fakeLedger{}, &fakeSeq{}, nil, nil)

	out := c.Execute(context.Background(), strategy.Decision{Direction: model.DirectionNone})
	if out.State != StateFailed || len(gw.orders) != 0 {
		t.Fatalf("expected FAILED without orders, got %s", out.State)
	}
}

func TestExecute_StopFailureSkipsTarget(t *testing.T) {
	gw := &fakeGateway{fill: 100, fillOK: true, stopErr: errors.New("would immediately trigger")}
	ledger := &fakeLedger{}
	n := &captureNotifier{}
	c := NewController(testConfig(), gw, ledger, &fakeSeq{}, n, nil)

	out := c.Execute(context.Background(), longDecision())

	if out.State != StatePartiallyProtected {
		t.Fatalf("expected PARTIALLY_PROTECTED, got %s", out.State)
	}
	assertStates(t, out.Transitions, StatePendingEntry, StateEntryFilled, StatePartiallyProtected)
	if out.StopOrderID != "" || out.TargetOrderID != "" {
		t.Fatalf("expected no protective orders, got %q/%q", out.StopOrderID, out.TargetOrderID)
	}
	if len(gw.orders) != 1 {
		t.Fatalf("target must not be attempted after stop failure, got %d orders", len(gw.orders))
	}
	if got := kinds(ledger.records); len(got) != 1 || got[0] != model.OrderKindEntry {
		t.Fatalf("expected only the ENTRY record, got %v", got)
	}
	if len(n.alerts) != 1 || n.alerts[0].Level != notification.AlertCritical {
		t.Fatalf("expected one critical alert, got %+v", n.alerts)
	}
	a := n.alerts[0]
	if a.Get("group") != strconv.FormatInt(out.GroupID, 10) || a.Get("state") != string(StatePartiallyProtected) {
		t.Fatalf("expected group and state fields, got %+v", a.Fields)
	}
	if a.Get("entry_order") != out.EntryOrderID || a.Get("error") == "" || a.Get("stop_order") != "" {
		t.Fatalf("unexpected order fields %+v", a.Fields)
	}
}

func TestExecute_TargetFailure(t *testing.T) {
	gw := &fakeGateway{fill: 100, fillOK: true, targetErr: errors.New("price filter")}
	ledger := &fakeLedger{}
	c := NewController(testConfig(), gw, ledger, &fakeSeq{}, nil, nil)

	out := c.Execute(context.Background(), longDecision())

	if out.State != StatePartiallyProtected {
		t.Fatalf("expected PARTIALLY_PROTECTED, got %s", out.State)
	}
	if out.StopOrderID != "S1" || out.TargetOrderID != "" {
		t.Fatalf("expected stop only, got %q/%q", out.StopOrderID, out.TargetOrderID)
	}
	if got := kinds(ledger.records); len(got) != 2 || got[1] != model.OrderKindStop {
		t.Fatalf("expected ENTRY and STOP records, got %v", got)
	}
	if !errors.Is(out.Err, model.ErrOrderSubmission) {
		t.Fatalf("expected ErrOrderSubmission, got %v", out.Err)
	}
}

func TestExecute_LedgerErrorsAreNonFatal(t *testing.T) {
	gw := &fakeGateway{fill: 100, fillOK: true}
	ledger := &fakeLedger{err: errors.New("disk full")}
	c := NewController(testConfig(), gw, ledger, &fakeSeq{}, nil, nil)

	var failedKinds []model.OrderKind
	c.OnLedgerError = func(k model.OrderKind) { failedKinds = append(failedKinds, k) }

	out := c.Execute(context.Background(), longDecision())

	if out.State != StateComplete {
		t.Fatalf("expected COMPLETE despite ledger errors, got %s", out.State)
	}
	if len(out.LedgerErrors) != 3 || len(failedKinds) != 3 {
		t.Fatalf("expected 3 ledger errors, got %d/%d", len(out.LedgerErrors), len(failedKinds))
	}
	for _, err := range out.LedgerErrors {
		if !errors.Is(err, model.ErrLedgerWrite) {
			t.Fatalf("expected ErrLedgerWrite, got %v", err)
		}
	}
	if len(gw.orders) != 3 {
		t.Fatalf("expected all 3 orders placed, got %d", len(gw.orders))
	}
}

func TestExecute_FillFallback(t *testing.T) {
	tests := []struct {
		name    string
		ackFill float64
		want    float64
	}{
		{"ack price", 100.2, 100.2},
		{"decision close", 0, 99.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{ackFill: tt.ackFill, fillErr: errors.New("order does not exist")}
			c := NewController(testConfig(), gw, &fakeLedger{}, &fakeSeq{}, nil, nil)

			out := c.Execute(context.Background(), longDecision())
			if !out.FillFallback {
				t.Fatal("expected fallback flag")
			}
			if out.EntryPrice != tt.want {
				t.Fatalf("expected entry %v, got %v", tt.want, out.EntryPrice)
			}
			if out.State != StateComplete {
				t.Fatalf("expected COMPLETE, got %s", out.State)
			}
		})
	}
}

func TestExecute_IgnoresCancellationAfterEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &fakeGateway{fill: 100, fillOK: true}
	c := NewController(testConfig(), gw, &fakeLedger{}, &fakeSeq{}, nil, nil)
	c.OnOrder = func(kind model.OrderKind, err error) {
		if kind == model.OrderKindEntry {
			cancel()
		}
	}

	out := c.Execute(ctx, longDecision())
	if out.State != StateComplete {
		t.Fatalf("expected COMPLETE after cancellation, got %s (%v)", out.State, out.Err)
	}
}

func TestFillAwaiter_Timeout(t *testing.T) {
	gw := &fakeGateway{}
	a := NewFillAwaiter(gw, time.Millisecond, 10*time.Millisecond)

	_, err := a.Await(context.Background(), "SOLUSDT", "E1")
	if !errors.Is(err, ErrFillTimeout) {
		t.Fatalf("expected ErrFillTimeout, got %v", err)
	}
	if gw.polls < 2 {
		t.Fatalf("expected repeated polls, got %d", gw.polls)
	}
}

func TestFillAwaiter_Immediate(t *testing.T) {
	gw := &fakeGateway{fill: 42.5, fillOK: true}
	price, err := NewFillAwaiter(gw, time.Hour, time.Hour).Await(context.Background(), "SOLUSDT", "E1")
	if err != nil || price != 42.5 {
		t.Fatalf("expected 42.5, got %v (%v)", price, err)
	}
}
