package indicator

import (
	"math"
	"testing"
)

func TestEngine_UndefinedBeforeWarmup(t *testing.T) {
	engine := NewEngine(Config{BandPeriod: 20, BandWidth: 2, OscPeriod: 14, Lookback: 100, VolumePeriod: 12})

	for n := 0; n < 20; n++ {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = 100 + float64(i%3)
		}
		snap := engine.Compute(closesOf(vals...))
		if snap.Band != nil {
			t.Fatalf("n=%d: band should be undefined, got %+v", n, *snap.Band)
		}
		if n < 15 && snap.Oscillator != nil {
			t.Fatalf("n=%d: oscillator should be undefined, got %v", n, *snap.Oscillator)
		}
		if snap.Ready() {
			t.Fatalf("n=%d: snapshot should not be ready", n)
		}
	}
}

func TestEngine_ReadyAfterWarmup(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	snap := engine.Compute(closesOf(wave(150)...))
	if !snap.Ready() {
		t.Fatal("expected ready snapshot with 150 closes")
	}
	if snap.RelativeVolume == nil || math.Abs(*snap.RelativeVolume-1) > 1e-9 {
		t.Fatalf("expected relative volume 1 for flat volumes, got %v", snap.RelativeVolume)
	}
	if snap.Band.Lower > snap.Band.Mean || snap.Band.Mean > snap.Band.Upper {
		t.Fatalf("band out of order: %+v", *snap.Band)
	}
}

func TestEngine_DefaultsForZeroConfig(t *testing.T) {
	engine := NewEngine(Config{Lookback: -1})
	cfg := engine.Config()
	def := DefaultConfig()
	if cfg != def {
		t.Fatalf("expected defaults %+v, got %+v", def, cfg)
	}
}

func TestEngine_ZeroLookbackKept(t *testing.T) {
	engine := NewEngine(Config{BandPeriod: 3, BandWidth: 1, OscPeriod: 2, Lookback: 0, VolumePeriod: 2})
	if engine.Config().Lookback != 0 {
		t.Fatalf("expected explicit lookback 0 to be kept, got %d", engine.Config().Lookback)
	}
	// With lookback 0 only the last period+1 closes are used (seed only).
	snap := engine.Compute(closesOf(50, 40, 10, 12, 11))
	if snap.Oscillator == nil {
		t.Fatal("expected oscillator")
	}
	assertClose(t, "seed-only RSI", *snap.Oscillator, 100-100.0/3.0, 1e-9)
}
