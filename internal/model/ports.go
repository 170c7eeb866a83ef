package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the decision loop from the exchange, the stream
// transport and the ledger backend.

// CandleStream delivers closed candles for one instrument and interval.
type CandleStream interface {
	// Subscribe returns a channel of closed candles. The stream reconnects on
	// its own; the channel is closed only when ctx is cancelled.
	Subscribe(ctx context.Context, symbol, interval string) (<-chan Candle, error)
}

// HistorySource loads recent candles used to seed the cache at startup.
type HistorySource interface {
	// FetchHistory returns up to limit candles in ascending time order.
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// OrderGateway submits orders to the exchange.
type OrderGateway interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty float64) (OrderAck, error)
	PlaceStopOrder(ctx context.Context, symbol string, side Side, stopPrice, qty float64) (OrderAck, error)
	PlaceTargetOrder(ctx context.Context, symbol string, side Side, stopPrice, limitPrice, qty float64) (OrderAck, error)

	// GetFillPrice returns the average fill price of an order. ok is false
	// while the exchange has not reported a fill yet.
	GetFillPrice(ctx context.Context, symbol, orderID string) (price float64, ok bool, err error)
}

// RiskSource reports how much of the portfolio is currently at risk, in percent.
type RiskSource interface {
	PortfolioRisk(ctx context.Context, riskAmount float64) (float64, error)
}

// TradeLedger persists lifecycle records and answers recent-trade queries.
type TradeLedger interface {
	// AppendRecord persists one record. Records are never mutated afterwards.
	AppendRecord(ctx context.Context, rec TradeRecord) error

	// RecentTrades returns up to limit position groups, most recent first.
	RecentTrades(ctx context.Context, limit int) ([]TradeSummary, error)
}

// GroupCloser marks a position group closed with its realized PnL.
// It is written by the out-of-band stop manager, not by the decision loop.
type GroupCloser interface {
	CloseGroup(ctx context.Context, groupID int64, pnl float64, exitAt time.Time) error
}

// GroupSequencer hands out unique, monotonically increasing group ids.
type GroupSequencer interface {
	NextGroupID(ctx context.Context) (int64, error)
}
