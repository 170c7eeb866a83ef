// Package replay feeds historical klines through the decision loop at a
// configurable speed for backtesting.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// maxGap caps the simulated wait between two candles.
const maxGap = 5 * time.Second

// Replayer emits a fixed set of closed candles in close-time order.
type Replayer struct {
	candles []model.Candle
	speed   float64
	log     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer. speed controls the playback rate: 1 = real time,
// 10 = 10x, 0 = as fast as possible.
func New(candles []model.Candle, speed float64, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	sorted := make([]model.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CloseTime < sorted[j].CloseTime })
	return &Replayer{
		candles: sorted,
		speed:   speed,
		log:     log.With(slog.String("component", "replay")),
		sleep:   sleepCtx,
	}
}

// Len returns the number of candles the replayer will emit.
func (r *Replayer) Len() int { return len(r.candles) }

// Subscribe implements model.CandleStream. Symbol and interval are ignored:
// the replayer already holds one instrument's candles. The channel is closed
// after the last candle or when ctx is cancelled.
func (r *Replayer) Subscribe(ctx context.Context, _, _ string) (<-chan model.Candle, error) {
	out := make(chan model.Candle)
	go func() {
		defer close(out)
		if err := r.Run(ctx, out); err != nil {
			r.log.Warn("replay stopped", slog.String("error", err.Error()))
		}
	}()
	return out, nil
}

// Run emits every candle into out, honouring the playback speed.
func (r *Replayer) Run(ctx context.Context, out chan<- model.Candle) error {
	if len(r.candles) == 0 {
		r.log.Info("no candles to replay")
		return nil
	}
	r.log.Info("replay started", slog.Int("candles", len(r.candles)), slog.Float64("speed", r.speed))

	var prev int64
	emitted := 0
	for _, c := range r.candles {
		if r.speed > 0 && prev > 0 {
			if gap := time.Duration(c.CloseTime-prev) * time.Millisecond; gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					return err
				}
			}
		}
		prev = c.CloseTime

		select {
		case <-ctx.Done():
			r.log.Info("replay cancelled", slog.Int("emitted", emitted))
			return ctx.Err()
		case out <- c:
			emitted++
		}
	}

	r.log.Info("replay completed", slog.Int("emitted", emitted))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
