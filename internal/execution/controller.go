// Package execution runs the order lifecycle of an accepted entry decision:
// market entry, fill confirmation, protective stop and target orders, and the
// ledger records of the group.
//
// The Controller never retries an order. A failed entry aborts the group
// before anything else is sent; a failed protective order leaves the group in
// the reportable PARTIALLY_PROTECTED state. Ledger write failures are logged
// and counted but never stop the lifecycle, because the order is already live
// on the exchange.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/logger"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/notification"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
)

// Config holds the lifecycle parameters.
type Config struct {
	Symbol           string
	StopLossPct      float64
	FeePct           float64
	BreakevenBuffer  float64
	PricePrecision   int32
	FillPollInterval time.Duration
	FillTimeout      time.Duration
}

// Outcome is the full report of one lifecycle run.
type Outcome struct {
	GroupID     int64           `json:"group_id"`
	Direction   model.Direction `json:"direction"`
	Quantity    float64         `json:"quantity"`
	State       State           `json:"state"`
	Transitions []State         `json:"transitions"`

	EntryOrderID  string `json:"entry_order_id,omitempty"`
	StopOrderID   string `json:"stop_order_id,omitempty"`
	TargetOrderID string `json:"target_order_id,omitempty"`

	EntryPrice         float64 `json:"entry_price"`
	FillFallback       bool    `json:"fill_fallback"`
	StopPrice          float64 `json:"stop_price"`
	TargetPrice        float64 `json:"target_price"`
	BreakevenPrice     float64 `json:"breakeven_price"`
	BreakevenThreshold float64 `json:"breakeven_threshold"`

	LedgerErrors []error `json:"-"`
	Err          error   `json:"-"`
}

// Protected reports whether both protective orders are live.
func (o *Outcome) Protected() bool {
	return o.StopOrderID != "" && o.TargetOrderID != ""
}

// moveTo advances the lifecycle. An illegal edge leaves the state unchanged
// and is recorded on Err.
func (o *Outcome) moveTo(s State) {
	if !CanTransition(o.State, s) {
		o.Err = errors.Join(o.Err, fmt.Errorf("illegal lifecycle transition %s -> %s", o.State, s))
		return
	}
	o.State = s
	o.Transitions = append(o.Transitions, s)
}

// Controller sequences the orders of one group.
type Controller struct {
	cfg      Config
	gateway  model.OrderGateway
	ledger   model.TradeLedger
	seq      model.GroupSequencer
	awaiter  *FillAwaiter
	notifier notification.Notifier
	log      *slog.Logger

	// Optional metrics hooks
	OnOrder       func(kind model.OrderKind, err error)
	OnLedgerError func(kind model.OrderKind)
	OnOutcome     func(o *Outcome)

	now func() time.Time
}

// NewController wires a controller. A nil notifier logs alerts only.
func NewController(cfg Config, gw model.OrderGateway, ledger model.TradeLedger, seq model.GroupSequencer, n notification.Notifier, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if n == nil {
		n = notification.NewLogNotifier(log)
	}
	return &Controller{
		cfg:      cfg,
		gateway:  gw,
		ledger:   ledger,
		seq:      seq,
		awaiter:  NewFillAwaiter(gw, cfg.FillPollInterval, cfg.FillTimeout),
		notifier: n,
		log:      log,
		now:      time.Now,
	}
}

// Execute runs the lifecycle for an entry decision and returns its outcome.
// Once the entry order is accepted the remaining phases ignore cancellation
// of ctx: an open position always gets its protective orders or is reported
// as not fully protected.
func (c *Controller) Execute(ctx context.Context, d strategy.Decision) *Outcome {
	out := &Outcome{Direction: d.Direction, Quantity: d.Quantity}
	out.moveTo(StatePendingEntry)
	log := c.log.With(logger.LogWithTrace(ctx)...)

	if !d.Entry() {
		return c.fail(ctx, log, out, fmt.Errorf("decision %s is not an entry", d.Direction))
	}

	groupID, err := c.seq.NextGroupID(ctx)
	if err != nil {
		return c.fail(ctx, log, out, fmt.Errorf("next group id: %w", err))
	}
	out.GroupID = groupID
	log = log.With(slog.Int64("group_id", groupID), slog.String("direction", string(d.Direction)))

	// ---- Entry ----
	log.Info("placing entry order", slog.Float64("qty", d.Quantity), slog.Float64("close", d.Close))
	ack, err := c.gateway.PlaceMarketOrder(ctx, c.cfg.Symbol, d.Direction.EntrySide(), d.Quantity)
	c.orderHook(model.OrderKindEntry, err)
	if err != nil {
		return c.fail(ctx, log, out, fmt.Errorf("entry order: %w: %w", model.ErrOrderSubmission, err))
	}
	out.EntryOrderID = ack.OrderID
	log.Info("entry order placed", slog.String("order_id", ack.OrderID))

	ctx = context.WithoutCancel(ctx)
	c.record(ctx, log, out, model.TradeRecord{
		GroupID:   groupID,
		OrderID:   ack.OrderID,
		Kind:      model.OrderKindEntry,
		Direction: d.Direction,
		Quantity:  d.Quantity,
		Price:     ack.FillPrice,
	})

	// ---- Price settle ----
	entry, err := c.awaiter.Await(ctx, c.cfg.Symbol, ack.OrderID)
	if err != nil {
		entry = ack.FillPrice
		if entry <= 0 {
			entry = d.Close
		}
		out.FillFallback = true
		log.Warn("fill price not confirmed, using fallback",
			slog.String("error", err.Error()), slog.Float64("fallback_price", entry))
	}
	out.EntryPrice = entry
	out.moveTo(StateEntryFilled)

	prec := c.cfg.PricePrecision
	out.StopPrice = StopPrice(d.Direction, entry, c.cfg.StopLossPct, prec)
	out.TargetPrice = roundPrice(d.Band.Mean, prec)
	out.BreakevenPrice, out.BreakevenThreshold = Breakeven(d.Direction, entry, c.cfg.FeePct, c.cfg.BreakevenBuffer, prec)
	log.Info("entry filled",
		slog.Float64("entry_price", entry),
		slog.Float64("stop_price", out.StopPrice),
		slog.Float64("target_price", out.TargetPrice),
		slog.Float64("breakeven_price", out.BreakevenPrice),
		slog.Float64("breakeven_threshold", out.BreakevenThreshold))

	// ---- Protective stop ----
	exit := d.Direction.ExitSide()
	stopAck, err := c.gateway.PlaceStopOrder(ctx, c.cfg.Symbol, exit, out.StopPrice, d.Quantity)
	c.orderHook(model.OrderKindStop, err)
	if err != nil {
		return c.partial(ctx, log, out, fmt.Errorf("stop order: %w: %w", model.ErrOrderSubmission, err))
	}
	out.StopOrderID = stopAck.OrderID
	log.Info("stop order placed", slog.String("order_id", stopAck.OrderID))
	c.record(ctx, log, out, model.TradeRecord{
		GroupID:            groupID,
		OrderID:            stopAck.OrderID,
		Kind:               model.OrderKindStop,
		Direction:          d.Direction,
		Quantity:           d.Quantity,
		Price:              out.StopPrice,
		BreakevenThreshold: out.BreakevenThreshold,
		BreakevenPrice:     out.BreakevenPrice,
	})

	// ---- Target ----
	tgtAck, err := c.gateway.PlaceTargetOrder(ctx, c.cfg.Symbol, exit, out.TargetPrice, out.TargetPrice, d.Quantity)
	c.orderHook(model.OrderKindTarget, err)
	if err != nil {
		return c.partial(ctx, log, out, fmt.Errorf("target order: %w: %w", model.ErrOrderSubmission, err))
	}
	out.TargetOrderID = tgtAck.OrderID
	log.Info("target order placed", slog.String("order_id", tgtAck.OrderID))
	out.moveTo(StateProtectivePlaced)

	c.record(ctx, log, out, model.TradeRecord{
		GroupID:   groupID,
		OrderID:   tgtAck.OrderID,
		Kind:      model.OrderKindTarget,
		Direction: d.Direction,
		Quantity:  d.Quantity,
		Price:     out.TargetPrice,
	})

	out.moveTo(StateComplete)
	log.Info("order group complete", slog.Int("ledger_errors", len(out.LedgerErrors)))
	c.outcomeHook(out)
	return out
}

// record appends a ledger record; failures are reported, never fatal.
func (c *Controller) record(ctx context.Context, log *slog.Logger, out *Outcome, rec model.TradeRecord) {
	rec.CreatedAt = c.now().UTC()
	if err := c.ledger.AppendRecord(ctx, rec); err != nil {
		err = fmt.Errorf("%s record for order %s: %w: %w", rec.Kind, rec.OrderID, model.ErrLedgerWrite, err)
		out.LedgerErrors = append(out.LedgerErrors, err)
		log.Error("ledger write failed, exchange and ledger diverge", slog.String("error", err.Error()))
		if c.OnLedgerError != nil {
			c.OnLedgerError(rec.Kind)
		}
		return
	}
	log.Info("trade record logged", slog.String("kind", string(rec.Kind)), slog.String("order_id", rec.OrderID))
}

func (c *Controller) fail(ctx context.Context, log *slog.Logger, out *Outcome, err error) *Outcome {
	out.Err = err
	out.moveTo(StateFailed)
	log.Error("order group failed", slog.String("error", err.Error()))
	c.alert(ctx, log, notification.AlertWarning, "Entry aborted", out)
	c.outcomeHook(out)
	return out
}

func (c *Controller) partial(ctx context.Context, log *slog.Logger, out *Outcome, err error) *Outcome {
	out.Err = err
	out.moveTo(StatePartiallyProtected)
	log.Error("position is not fully protected",
		slog.String("error", err.Error()),
		slog.Bool("stop_live", out.StopOrderID != ""),
		slog.Bool("target_live", out.TargetOrderID != ""))
	c.alert(ctx, log, notification.AlertCritical, "Position partially protected", out)
	c.outcomeHook(out)
	return out
}

func (c *Controller) alert(ctx context.Context, log *slog.Logger, level notification.AlertLevel, title string, out *Outcome) {
	fields := []notification.Field{
		{Key: "symbol", Value: c.cfg.Symbol},
		{Key: "group", Value: strconv.FormatInt(out.GroupID, 10)},
		{Key: "direction", Value: string(out.Direction)},
		{Key: "state", Value: string(out.State)},
	}
	if out.EntryOrderID != "" {
		fields = append(fields,
			notification.Field{Key: "entry_order", Value: out.EntryOrderID},
			notification.Field{Key: "entry_price", Value: strconv.FormatFloat(out.EntryPrice, 'f', 4, 64)},
		)
	}
	if out.StopOrderID != "" {
		fields = append(fields, notification.Field{Key: "stop_order", Value: out.StopOrderID})
	}
	if out.TargetOrderID != "" {
		fields = append(fields, notification.Field{Key: "target_order", Value: out.TargetOrderID})
	}
	if out.Err != nil {
		fields = append(fields, notification.Field{Key: "error", Value: out.Err.Error()})
	}

	msg := fmt.Sprintf("%s %s group %d is %s", c.cfg.Symbol, out.Direction, out.GroupID, out.State)
	if err := c.notifier.Send(ctx, notification.Alert{Level: level, Title: title, Message: msg, Fields: fields}); err != nil {
		log.Warn("alert delivery failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) orderHook(kind model.OrderKind, err error) {
	if c.OnOrder != nil {
		c.OnOrder(kind, err)
	}
}

func (c *Controller) outcomeHook(o *Outcome) {
	if c.OnOutcome != nil {
		c.OnOutcome(o)
	}
}
