// Package ringbuf provides the rolling candle cache: a fixed-capacity FIFO of
// the most recent closed candles backed by a circular buffer. It is owned by
// the single decision loop and is not safe for concurrent use.
package ringbuf

import (
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// Ring keeps the last Cap() candles in arrival order.
type Ring struct {
	buf   []model.Candle
	head  int // index of the oldest candle
	count int

	// Evictions since creation (for metrics)
	evicted uint64
}

// New creates a cache holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Candle, capacity)}
}

// Seed loads historical candles in input order, admitting only candles whose
// close time is strictly before now so an in-progress kline never enters the
// history. Returns the number of candles admitted.
func (r *Ring) Seed(candles []model.Candle, now time.Time) int {
	admitted := 0
	for i := range candles {
		if !candles[i].ClosedBefore(now) {
			continue
		}
		r.Push(candles[i])
		admitted++
	}
	return admitted
}

// Push appends a candle, evicting the oldest one when the cache is full.
// Returns true if a candle was evicted.
func (r *Ring) Push(c model.Candle) bool {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = c
		r.count++
		return false
	}

	// Full: overwrite the oldest slot and advance head.
	r.buf[r.head] = c
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return true
}

// at returns the i-th candle in chronological order (0 = oldest).
func (r *Ring) at(i int) model.Candle {
	return r.buf[(r.head+i)%len(r.buf)]
}

// LastNCloses returns the close prices of the last n candles, oldest first.
// ok is false when fewer than n candles are cached.
func (r *Ring) LastNCloses(n int) ([]float64, bool) {
	if n <= 0 || r.count < n {
		return nil, false
	}
	out := make([]float64, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.at(start + i).Close
	}
	return out, true
}

// LastNVolumes returns the volumes of the last n candles, oldest first.
// ok is false when fewer than n candles are cached.
func (r *Ring) LastNVolumes(n int) ([]float64, bool) {
	if n <= 0 || r.count < n {
		return nil, false
	}
	out := make([]float64, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.at(start + i).Volume
	}
	return out, true
}

// Last returns the most recent candle.
func (r *Ring) Last() (model.Candle, bool) {
	if r.count == 0 {
		return model.Candle{}, false
	}
	return r.at(r.count - 1), true
}

// Candles returns a copy of the cached candles, oldest first.
func (r *Ring) Candles() []model.Candle {
	out := make([]model.Candle, r.count)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

// Len returns the current number of cached candles.
func (r *Ring) Len() int { return r.count }

// Cap returns the cache capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Evicted returns the total number of candles dropped from the front.
func (r *Ring) Evicted() uint64 { return r.evicted }
