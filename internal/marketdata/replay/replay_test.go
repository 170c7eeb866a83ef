package replay

import (
	"context"
	"testing"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

func mk(closeMs int64, close float64) model.Candle {
	return model.Candle{Symbol: "SOLUSDT", OpenTime: closeMs - 300_000, CloseTime: closeMs, Close: close}
}

func collect(t *testing.T, r *Replayer) []model.Candle {
	t.Helper()
	ch, err := r.Subscribe(context.Background(), "SOLUSDT", "5m")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var got []model.Candle
	for c := range ch {
		got = append(got, c)
	}
	return got
}

func TestReplayer_EmitsInCloseTimeOrder(t *testing.T) {
	r := New([]model.Candle{mk(900_000, 3), mk(300_000, 1), mk(600_000, 2)}, 0, nil)
	if r.Len() != 3 {
		t.Fatalf("expected 3 candles, got %d", r.Len())
	}

	got := collect(t, r)
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i].Close != want {
			t.Errorf("candle %d: expected close %v, got %v", i, want, got[i].Close)
		}
	}
}

func TestReplayer_ScalesGaps(t *testing.T) {
	r := New([]model.Candle{mk(300_000, 1), mk(600_000, 2), mk(4_200_000, 3)}, 100, nil)
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if got := collect(t, r); len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	// 300s / 100 = 3s; 3600s / 100 = 36s capped to 5s
	if len(waits) != 2 || waits[0] != 3*time.Second || waits[1] != maxGap {
		t.Fatalf("unexpected waits %v", waits)
	}
}

func TestReplayer_MaxSpeedNeverSleeps(t *testing.T) {
	r := New([]model.Candle{mk(300_000, 1), mk(600_000, 2)}, 0, nil)
	r.sleep = func(context.Context, time.Duration) error {
		t.Error("sleep called at max speed")
		return nil
	}
	collect(t, r)
}

func TestReplayer_Cancel(t *testing.T) {
	r := New([]model.Candle{mk(300_000, 1), mk(600_000, 2)}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Candle)
	cancel()

	if err := r.Run(ctx, out); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReplayer_Empty(t *testing.T) {
	if got := collect(t, New(nil, 0, nil)); len(got) != 0 {
		t.Fatalf("expected no candles, got %d", len(got))
	}
}
