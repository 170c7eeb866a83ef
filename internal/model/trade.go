package model

import "time"

// Direction is the side of a position.
type Direction string

const (
	DirectionNone  Direction = "NONE"
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// EntrySide returns the order side that opens a position in this direction.
func (d Direction) EntrySide() Side {
	if d == DirectionShort {
		return SideSell
	}
	return SideBuy
}

// ExitSide returns the order side used by the protective orders.
func (d Direction) ExitSide() Side {
	if d == DirectionShort {
		return SideBuy
	}
	return SideSell
}

// Side is an exchange order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderKind tags a ledger record with the role of its order inside a group.
type OrderKind string

const (
	OrderKindEntry  OrderKind = "ENTRY"
	OrderKindStop   OrderKind = "STOP"
	OrderKindTarget OrderKind = "TARGET"
)

// TradeRecord is one order of a position group as persisted by the ledger.
// Breakeven fields are only populated on the STOP record.
type TradeRecord struct {
	GroupID            int64     `json:"group_id"`
	OrderID            string    `json:"order_id"`
	Kind               OrderKind `json:"order_kind"`
	Direction          Direction `json:"direction"`
	Quantity           float64   `json:"quantity"`
	Price              float64   `json:"price"`
	BreakevenThreshold float64   `json:"breakeven_threshold"`
	BreakevenPrice     float64   `json:"breakeven_price"`
	CreatedAt          time.Time `json:"created_at"`
}

// TradeSummary is one position group as returned by TradeLedger.RecentTrades.
type TradeSummary struct {
	GroupID     int64     `json:"group_id"`
	Direction   Direction `json:"direction"`
	RealizedPnL float64   `json:"realized_pnl"`
	Closed      bool      `json:"is_closed"`
	ExitTime    time.Time `json:"exit_time"`
}

// EligibilityState is derived from the ledger every decision cycle.
type EligibilityState struct {
	HasClosedTrade   bool
	LastClosedPnL    float64
	LastClosedExitAt time.Time
	OpenTrades       int
}

// OrderAck is the exchange acknowledgement of a submitted order.
// FillPrice is zero when the exchange did not report one.
type OrderAck struct {
	OrderID   string
	FillPrice float64
}
