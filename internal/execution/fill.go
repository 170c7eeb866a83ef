package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// ErrFillTimeout is returned when the exchange did not report a fill in time.
var ErrFillTimeout = errors.New("fill not confirmed before timeout")

// FillAwaiter polls the gateway for an order's fill price with a bounded timeout.
type FillAwaiter struct {
	gateway  model.OrderGateway
	interval time.Duration
	timeout  time.Duration
}

// NewFillAwaiter creates an awaiter. Non-positive durations use 250ms / 5s.
func NewFillAwaiter(gw model.OrderGateway, interval, timeout time.Duration) *FillAwaiter {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FillAwaiter{gateway: gw, interval: interval, timeout: timeout}
}

// Await returns the fill price of orderID as soon as the exchange reports it.
// The first query is made immediately; the last error seen is wrapped into
// the timeout error.
func (f *FillAwaiter) Await(ctx context.Context, symbol, orderID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		price, ok, err := f.gateway.GetFillPrice(ctx, symbol, orderID)
		if err == nil && ok && price > 0 {
			return price, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return 0, fmt.Errorf("%w: order %s: %v", ErrFillTimeout, orderID, lastErr)
			}
			return 0, fmt.Errorf("%w: order %s", ErrFillTimeout, orderID)
		case <-ticker.C:
		}
	}
}
