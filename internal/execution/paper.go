package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/portfolio"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID    string     `json:"order_id"`
	Kind       string     `json:"kind"` // MARKET, STOP_MARKET, TAKE_PROFIT, EXIT_STOP, EXIT_TARGET
	Side       model.Side `json:"side"`
	Qty        float64    `json:"qty"`
	Price      float64    `json:"price"`      // fill price for MARKET, trigger price otherwise
	LimitPrice float64    `json:"limit_price"` // TAKE_PROFIT only
	Slippage   float64    `json:"slippage"`
	Filled     bool       `json:"filled"` // resting order triggered by Observe
	PlacedAt   time.Time  `json:"placed_at"`
}

// PaperGateway simulates order execution without real exchange calls.
// Market orders fill immediately at the last mark price plus slippage. Stop
// and target orders rest until Observe sees a candle trade through them; the
// first one hit closes the position and cancels its sibling.
type PaperGateway struct {
	mu        sync.RWMutex
	fills     []Fill
	byID      map[string]Fill
	orderSeq  int64
	mark      float64
	positions map[string]*paperPosition // keyed by entry order id

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	balance     float64 // paper wallet balance used for the risk ratio
	log         *slog.Logger

	// Closer receives the realized PnL of every settled position. Optional.
	Closer model.GroupCloser
}

// paperPosition is an open simulated position. Stop and target are zero
// until Track attaches the protective orders of its group.
type paperPosition struct {
	groupID  int64
	dir      model.Direction
	qty      float64
	entry    float64
	stop     float64
	target   float64
	stopID   string
	targetID string
}

// PaperExit describes a position closed by a triggered protective order.
type PaperExit struct {
	GroupID     int64
	OrderID     string
	Kind        model.OrderKind
	Price       float64
	RealizedPnL float64 // before fees
	ExitAt      time.Time
}

// NewPaperGateway creates a paper trading gateway.
func NewPaperGateway(slippageBps, balance float64, log *slog.Logger) *PaperGateway {
	if log == nil {
		log = slog.Default()
	}
	return &PaperGateway{
		fills:       make([]Fill, 0, 64),
		byID:        make(map[string]Fill),
		positions:   make(map[string]*paperPosition),
		slippageBps: slippageBps,
		balance:     balance,
		log:         log,
	}
}

// SetMarkPrice updates the price market orders fill at.
func (p *PaperGateway) SetMarkPrice(price float64) {
	p.mu.Lock()
	p.mark = price
	p.mu.Unlock()
}

// Track attaches a finished lifecycle to the position its entry opened, so
// the protective orders can be settled. Suitable as Controller.OnOutcome.
func (p *PaperGateway) Track(o *Outcome) {
	if o == nil || o.EntryOrderID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[o.EntryOrderID]
	if !ok {
		return
	}
	pos.groupID = o.GroupID
	pos.dir = o.Direction
	pos.entry = o.EntryPrice
	if o.StopOrderID != "" {
		pos.stop, pos.stopID = o.StopPrice, o.StopOrderID
	}
	if o.TargetOrderID != "" {
		pos.target, pos.targetID = o.TargetPrice, o.TargetOrderID
	}
}

// Observe moves the mark to the candle close and settles every tracked
// position whose stop or target lies inside the candle's range. When both
// are inside, the stop is assumed to have traded first.
func (p *PaperGateway) Observe(ctx context.Context, c model.Candle) []PaperExit {
	exitAt := time.UnixMilli(c.CloseTime).UTC()

	p.mu.Lock()
	p.mark = c.Close
	var exits []PaperExit
	for entryID, pos := range p.positions {
		if pos.groupID == 0 {
			continue
		}
		ex, ok := pos.settle(c, p.slippageBps)
		if !ok {
			continue
		}
		ex.ExitAt = exitAt
		delete(p.positions, entryID)
		p.add(Fill{Kind: "EXIT_" + string(ex.Kind), Side: pos.dir.ExitSide(), Qty: pos.qty, Price: ex.Price})
		rest := p.byID[ex.OrderID]
		rest.Filled, rest.Price = true, ex.Price
		p.byID[ex.OrderID] = rest
		exits = append(exits, ex)
	}
	p.mu.Unlock()

	sort.Slice(exits, func(i, j int) bool { return exits[i].GroupID < exits[j].GroupID })
	for _, ex := range exits {
		p.log.Info("paper position closed",
			slog.Int64("group_id", ex.GroupID),
			slog.String("kind", string(ex.Kind)),
			slog.String("order_id", ex.OrderID),
			slog.Float64("price", ex.Price),
			slog.Float64("realized_pnl", ex.RealizedPnL))
		if p.Closer == nil {
			continue
		}
		if err := p.Closer.CloseGroup(ctx, ex.GroupID, ex.RealizedPnL, ex.ExitAt); err != nil {
			p.log.Error("paper close group failed", slog.Int64("group_id", ex.GroupID), slog.String("error", err.Error()))
		}
	}
	return exits
}

// settle reports the exit triggered by candle c, if any.
func (pos *paperPosition) settle(c model.Candle, slippageBps float64) (PaperExit, bool) {
	long := pos.dir != model.DirectionShort
	ex := PaperExit{GroupID: pos.groupID}

	switch {
	case pos.stopID != "" && ((long && c.Low <= pos.stop) || (!long && c.High >= pos.stop)):
		slip := pos.stop * slippageBps / 10000
		ex.Kind, ex.OrderID, ex.Price = model.OrderKindStop, pos.stopID, pos.stop-slip
		if !long {
			ex.Price = pos.stop + slip
		}
	case pos.targetID != "" && ((long && c.High >= pos.target) || (!long && c.Low <= pos.target)):
		ex.Kind, ex.OrderID, ex.Price = model.OrderKindTarget, pos.targetID, pos.target
	default:
		return PaperExit{}, false
	}

	ex.RealizedPnL = (ex.Price - pos.entry) * pos.qty
	if !long {
		ex.RealizedPnL = -ex.RealizedPnL
	}
	return ex, true
}

// OpenPositions returns the number of simulated positions not yet settled.
func (p *PaperGateway) OpenPositions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// GetFills returns a snapshot of all fills.
func (p *PaperGateway) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func (p *PaperGateway) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, qty float64) (model.OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mark <= 0 {
		return model.OrderAck{}, fmt.Errorf("paper: no mark price for %s", symbol)
	}
	if qty <= 0 {
		return model.OrderAck{}, fmt.Errorf("paper: invalid quantity %v", qty)
	}

	slippage := p.mark * p.slippageBps / 10000
	price := p.mark
	if side == model.SideBuy {
		price += slippage // buy higher
	} else {
		price -= slippage // sell lower
	}
	f := p.add(Fill{Kind: "MARKET", Side: side, Qty: qty, Price: price, Slippage: slippage})
	p.positions[f.OrderID] = &paperPosition{qty: qty, entry: price}
	p.log.Info("paper market order filled",
		slog.String("symbol", symbol), slog.String("side", string(side)),
		slog.Float64("qty", qty), slog.Float64("price", price), slog.String("order_id", f.OrderID))
	return model.OrderAck{OrderID: f.OrderID, FillPrice: price}, nil
}

func (p *PaperGateway) PlaceStopOrder(ctx context.Context, symbol string, side model.Side, stopPrice, qty float64) (model.OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.add(Fill{Kind: "STOP_MARKET", Side: side, Qty: qty, Price: stopPrice})
	p.log.Info("paper stop order accepted", slog.String("symbol", symbol), slog.Float64("stop", stopPrice), slog.String("order_id", f.OrderID))
	return model.OrderAck{OrderID: f.OrderID}, nil
}

func (p *PaperGateway) PlaceTargetOrder(ctx context.Context, symbol string, side model.Side, stopPrice, limitPrice, qty float64) (model.OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.add(Fill{Kind: "TAKE_PROFIT", Side: side, Qty: qty, Price: stopPrice, LimitPrice: limitPrice})
	p.log.Info("paper target order accepted", slog.String("symbol", symbol), slog.Float64("stop", stopPrice), slog.String("order_id", f.OrderID))
	return model.OrderAck{OrderID: f.OrderID}, nil
}

func (p *PaperGateway) GetFillPrice(ctx context.Context, symbol, orderID string) (float64, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.byID[orderID]
	if !ok {
		return 0, false, fmt.Errorf("paper: unknown order %s", orderID)
	}
	if f.Kind != "MARKET" && !f.Filled {
		return 0, false, nil
	}
	return f.Price, true, nil
}

// PortfolioRisk treats every unsettled paper position as risking riskAmount.
func (p *PaperGateway) PortfolioRisk(ctx context.Context, riskAmount float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return portfolio.PercentAtRisk(p.balance, len(p.positions), riskAmount), nil
}

// add must be called with p.mu held.
func (p *PaperGateway) add(f Fill) Fill {
	p.orderSeq++
	f.OrderID = fmt.Sprintf("PAPER-%d", p.orderSeq)
	f.PlacedAt = time.Now()
	p.fills = append(p.fills, f)
	p.byID[f.OrderID] = f
	return f
}
