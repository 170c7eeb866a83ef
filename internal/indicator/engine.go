package indicator

// Config selects the indicator parameters used by the decision loop.
type Config struct {
	BandPeriod   int     // moving-average window, e.g. 20
	BandWidth    float64 // k in mean ± k·σ, e.g. 2.0
	OscPeriod    int     // RSI period, e.g. 14
	Lookback     int     // extra closes fed into the RSI
	VolumePeriod int     // relative volume window, e.g. 12
}

// DefaultConfig returns the parameters the strategy was tuned with.
func DefaultConfig() Config {
	return Config{
		BandPeriod:   20,
		BandWidth:    2.0,
		OscPeriod:    14,
		Lookback:     DefaultLookback,
		VolumePeriod: 12,
	}
}

// Snapshot holds one cycle's indicator values. A nil field is undefined.
type Snapshot struct {
	Band           *Band    `json:"band,omitempty"`
	Oscillator     *float64 `json:"oscillator,omitempty"`
	RelativeVolume *float64 `json:"relative_volume,omitempty"`
}

// Ready reports whether both entry indicators are defined.
func (s Snapshot) Ready() bool {
	return s.Band != nil && s.Oscillator != nil
}

// Engine computes a Snapshot from the cache.
// Designed for single-goroutine usage, no locks needed.
type Engine struct {
	cfg Config
}

// NewEngine creates an indicator engine. Non-positive fields fall back to defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BandPeriod <= 0 {
		cfg.BandPeriod = def.BandPeriod
	}
	if cfg.BandWidth <= 0 {
		cfg.BandWidth = def.BandWidth
	}
	if cfg.OscPeriod <= 0 {
		cfg.OscPeriod = def.OscPeriod
	}
	if cfg.Lookback < 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.VolumePeriod <= 0 {
		cfg.VolumePeriod = def.VolumePeriod
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute evaluates every indicator against src.
func (e *Engine) Compute(src Source) Snapshot {
	var snap Snapshot
	if b, ok := ComputeBand(src, e.cfg.BandPeriod, e.cfg.BandWidth); ok {
		snap.Band = &b
	}
	if v, ok := ComputeOscillator(src, e.cfg.OscPeriod, e.cfg.Lookback); ok {
		snap.Oscillator = &v
	}
	if v, ok := ComputeRelativeVolume(src, e.cfg.VolumePeriod); ok {
		snap.RelativeVolume = &v
	}
	return snap
}
