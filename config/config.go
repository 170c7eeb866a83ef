// Package config loads the trader configuration: defaults, then an optional
// TOML file named by BANDTRADER_CONFIG, then environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/exchange/binance"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/execution"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/trader"
)

// FileEnv names the environment variable pointing at the optional TOML file.
const FileEnv = "BANDTRADER_CONFIG"

const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// Config holds all application configuration.
type Config struct {
	Symbol      string `toml:"symbol"`
	Interval    string `toml:"interval"`
	TradingMode string `toml:"trading_mode"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	Strategy   StrategyOptions  `toml:"strategy"`
	Risk       RiskOptions      `toml:"risk"`
	Indicators IndicatorOptions `toml:"indicators"`
	Cache      CacheOptions     `toml:"cache"`
	Execution  ExecutionOptions `toml:"execution"`
	Binance    BinanceOptions   `toml:"binance"`
	Storage    StorageOptions   `toml:"storage"`
	Alerts     AlertsOptions    `toml:"alerts"`
	Paper      PaperOptions     `toml:"paper"`
}

// StrategyOptions selects the variant. Unset parameters take the variant's defaults.
type StrategyOptions struct {
	Variant       string   `toml:"variant"`
	OscLow        *float64 `toml:"osc_low"`
	OscHigh       *float64 `toml:"osc_high"`
	CooldownSec   *int     `toml:"cooldown_sec"`
	MaxOpenTrades *int     `toml:"max_open_trades"`
}

type RiskOptions struct {
	RiskAmount      float64 `toml:"risk_amount"`
	StopLossPct     float64 `toml:"stop_loss_pct"`
	FeePct          float64 `toml:"fee_pct"`
	PortfolioLimit  float64 `toml:"portfolio_risk_threshold"`
	BreakevenBuffer float64 `toml:"breakeven_buffer"`
}

type IndicatorOptions struct {
	BandPeriod   int     `toml:"band_period"`
	BandWidth    float64 `toml:"band_width"`
	OscPeriod    int     `toml:"osc_period"`
	OscLookback  int     `toml:"osc_lookback"`
	VolumePeriod int     `toml:"volume_period"`
}

type CacheOptions struct {
	Size         int `toml:"size"`
	HistoryLimit int `toml:"history_limit"`
	RecentTrades int `toml:"recent_trades"`
}

type ExecutionOptions struct {
	FillTimeoutMs  int   `toml:"fill_timeout_ms"`
	FillPollMs     int   `toml:"fill_poll_ms"`
	QtyPrecision   int32 `toml:"qty_precision"`
	PricePrecision int32 `toml:"price_precision"`
	Leverage       int   `toml:"leverage"`
}

type BinanceOptions struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Testnet   bool   `toml:"testnet"`
}

type StorageOptions struct {
	SQLitePath    string `toml:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

type AlertsOptions struct {
	WebhookURL       string `toml:"webhook_url"`
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
}

type PaperOptions struct {
	Balance     float64 `toml:"balance"`
	SlippageBps float64 `toml:"slippage_bps"`
}

// Defaults returns the configuration the trader runs with when nothing is set.
func Defaults() *Config {
	return &Config{
		Symbol:      "SOLUSDT",
		Interval:    "5m",
		TradingMode: ModePaper,
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Strategy:    StrategyOptions{Variant: string(strategy.VariantThresholdTouch)},
		Risk: RiskOptions{
			RiskAmount:      2,
			StopLossPct:     1.1,
			FeePct:          0.07,
			PortfolioLimit:  20,
			BreakevenBuffer: 0.05,
		},
		Indicators: IndicatorOptions{
			BandPeriod:   20,
			BandWidth:    2,
			OscPeriod:    14,
			OscLookback:  indicator.DefaultLookback,
			VolumePeriod: 12,
		},
		Cache: CacheOptions{Size: 100, HistoryLimit: 150, RecentTrades: 20},
		Execution: ExecutionOptions{
			FillTimeoutMs:  5000,
			FillPollMs:     250,
			QtyPrecision:   2,
			PricePrecision: 2,
		},
		Storage: StorageOptions{SQLitePath: "data/bandtrader.db"},
		Paper:   PaperOptions{Balance: 1000, SlippageBps: 5},
	}
}

// Load builds the configuration from defaults, the optional TOML file and
// the environment, in that order, and validates it.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}
	e.setString("SYMBOL", &c.Symbol)
	e.setString("INTERVAL", &c.Interval)
	e.setString("TRADING_MODE", &c.TradingMode)
	e.setString("LOG_LEVEL", &c.LogLevel)
	e.setString("METRICS_ADDR", &c.MetricsAddr)

	e.setString("STRATEGY_VARIANT", &c.Strategy.Variant)
	e.setFloatPtr("OSC_LOW", &c.Strategy.OscLow)
	e.setFloatPtr("OSC_HIGH", &c.Strategy.OscHigh)
	e.setIntPtr("COOLDOWN_SEC", &c.Strategy.CooldownSec)
	e.setIntPtr("MAX_OPEN_TRADES", &c.Strategy.MaxOpenTrades)

	e.setFloat("RISK_AMOUNT", &c.Risk.RiskAmount)
	e.setFloat("STOP_LOSS_PCT", &c.Risk.StopLossPct)
	e.setFloat("FEE_PCT", &c.Risk.FeePct)
	e.setFloat("PORTFOLIO_RISK_THRESHOLD", &c.Risk.PortfolioLimit)
	e.setFloat("BREAKEVEN_BUFFER", &c.Risk.BreakevenBuffer)

	e.setInt("BAND_PERIOD", &c.Indicators.BandPeriod)
	e.setFloat("BAND_WIDTH", &c.Indicators.BandWidth)
	e.setInt("OSC_PERIOD", &c.Indicators.OscPeriod)
	e.setInt("OSC_LOOKBACK", &c.Indicators.OscLookback)
	e.setInt("VOLUME_PERIOD", &c.Indicators.VolumePeriod)

	e.setInt("CACHE_SIZE", &c.Cache.Size)
	e.setInt("HISTORY_LIMIT", &c.Cache.HistoryLimit)
	e.setInt("RECENT_TRADES", &c.Cache.RecentTrades)

	e.setInt("FILL_TIMEOUT_MS", &c.Execution.FillTimeoutMs)
	e.setInt("FILL_POLL_MS", &c.Execution.FillPollMs)
	e.setInt32("QTY_PRECISION", &c.Execution.QtyPrecision)
	e.setInt32("PRICE_PRECISION", &c.Execution.PricePrecision)
	e.setInt("LEVERAGE", &c.Execution.Leverage)

	e.setString("BINANCE_API_KEY", &c.Binance.APIKey)
	e.setString("BINANCE_API_SECRET", &c.Binance.APISecret)
	e.setBool("BINANCE_TESTNET", &c.Binance.Testnet)

	e.setString("SQLITE_PATH", &c.Storage.SQLitePath)
	e.setString("REDIS_ADDR", &c.Storage.RedisAddr)
	e.setString("REDIS_PASSWORD", &c.Storage.RedisPassword)
	e.setInt("REDIS_DB", &c.Storage.RedisDB)

	e.setString("ALERT_WEBHOOK_URL", &c.Alerts.WebhookURL)
	e.setString("TELEGRAM_BOT_TOKEN", &c.Alerts.TelegramBotToken)
	e.setString("TELEGRAM_CHAT_ID", &c.Alerts.TelegramChatID)

	e.setFloat("PAPER_BALANCE", &c.Paper.Balance)
	e.setFloat("PAPER_SLIPPAGE_BPS", &c.Paper.SlippageBps)

	return errors.Join(e.errs...)
}

// validIntervals are the kline intervals the futures API accepts.
var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// Validate rejects configurations the trader cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Symbol != "", "symbol is required")
	check(validIntervals[c.Interval], "unsupported interval %q", c.Interval)
	check(c.TradingMode == ModeLive || c.TradingMode == ModePaper, "trading_mode must be %q or %q, got %q", ModeLive, ModePaper, c.TradingMode)
	if c.TradingMode == ModeLive {
		check(c.Binance.APIKey != "" && c.Binance.APISecret != "", "live trading requires BINANCE_API_KEY and BINANCE_API_SECRET")
	}

	v, err := strategy.ParseVariant(c.Strategy.Variant)
	if err != nil {
		errs = append(errs, err)
	} else {
		p := c.variantParams(v)
		check(p.OscLow >= 0 && p.OscHigh <= 100 && p.OscLow < p.OscHigh, "oscillator thresholds must satisfy 0 <= low < high <= 100, got %v/%v", p.OscLow, p.OscHigh)
		check(p.Cooldown >= 0, "cooldown must not be negative")
		check(p.MaxOpenTrades >= 0, "max open trades must not be negative")
	}

	r := c.Risk
	check(r.RiskAmount > 0, "risk_amount must be positive")
	check(r.StopLossPct > 0 && r.StopLossPct < 100, "stop_loss_pct must be in (0, 100)")
	check(r.FeePct >= 0, "fee_pct must not be negative")
	check(r.PortfolioLimit > 0, "portfolio_risk_threshold must be positive")
	check(r.BreakevenBuffer >= 0, "breakeven_buffer must not be negative")

	ind := c.Indicators
	check(ind.BandPeriod >= 2, "band_period must be at least 2")
	check(ind.BandWidth > 0, "band_width must be positive")
	check(ind.OscPeriod >= 1, "osc_period must be at least 1")
	check(ind.OscLookback >= 0, "osc_lookback must not be negative")
	check(ind.VolumePeriod >= 1, "volume_period must be at least 1")

	check(c.Cache.Size >= ind.BandPeriod && c.Cache.Size >= ind.OscPeriod+1,
		"cache size %d cannot hold band_period %d / osc_period %d", c.Cache.Size, ind.BandPeriod, ind.OscPeriod)
	check(c.Cache.HistoryLimit >= 0 && c.Cache.HistoryLimit <= 1500, "history_limit must be in [0, 1500]")

	x := c.Execution
	check(x.FillPollMs > 0 && x.FillTimeoutMs >= x.FillPollMs, "fill_timeout_ms must be >= fill_poll_ms > 0")
	check(x.QtyPrecision >= 0 && x.QtyPrecision <= 8, "qty_precision must be in [0, 8]")
	check(x.PricePrecision >= 0 && x.PricePrecision <= 8, "price_precision must be in [0, 8]")
	check(x.Leverage >= 0 && x.Leverage <= 125, "leverage must be in [0, 125]")

	check(c.Storage.SQLitePath != "", "sqlite_path is required")
	check((c.Alerts.TelegramBotToken == "") == (c.Alerts.TelegramChatID == ""), "telegram alerts need both bot token and chat id")
	if c.TradingMode == ModePaper {
		check(c.Paper.Balance > 0, "paper balance must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Variant returns the parsed strategy variant. Call after Validate.
func (c *Config) Variant() strategy.Variant {
	v, _ := strategy.ParseVariant(c.Strategy.Variant)
	return v
}

func (c *Config) variantParams(v strategy.Variant) strategy.VariantParams {
	p := strategy.DefaultParams(v)
	s := c.Strategy
	if s.OscLow != nil {
		p.OscLow = *s.OscLow
	}
	if s.OscHigh != nil {
		p.OscHigh = *s.OscHigh
	}
	if s.CooldownSec != nil {
		p.Cooldown = time.Duration(*s.CooldownSec) * time.Second
	}
	if s.MaxOpenTrades != nil {
		p.MaxOpenTrades = *s.MaxOpenTrades
	}
	return p
}

// StrategyConfig builds the evaluator configuration.
func (c *Config) StrategyConfig() strategy.Config {
	v := c.Variant()
	return strategy.Config{
		Variant:       v,
		Params:        c.variantParams(v),
		RiskThreshold: c.Risk.PortfolioLimit,
		Sizing: strategy.Sizing{
			RiskAmount:   c.Risk.RiskAmount,
			StopLossPct:  c.Risk.StopLossPct,
			FeePct:       c.Risk.FeePct,
			QtyPrecision: c.Execution.QtyPrecision,
		},
	}
}

// IndicatorConfig builds the indicator engine configuration.
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		BandPeriod:   c.Indicators.BandPeriod,
		BandWidth:    c.Indicators.BandWidth,
		OscPeriod:    c.Indicators.OscPeriod,
		Lookback:     c.Indicators.OscLookback,
		VolumePeriod: c.Indicators.VolumePeriod,
	}
}

// ExecutionConfig builds the lifecycle controller configuration.
func (c *Config) ExecutionConfig() execution.Config {
	return execution.Config{
		Symbol:           c.Symbol,
		StopLossPct:      c.Risk.StopLossPct,
		FeePct:           c.Risk.FeePct,
		BreakevenBuffer:  c.Risk.BreakevenBuffer,
		PricePrecision:   c.Execution.PricePrecision,
		FillPollInterval: time.Duration(c.Execution.FillPollMs) * time.Millisecond,
		FillTimeout:      time.Duration(c.Execution.FillTimeoutMs) * time.Millisecond,
	}
}

// BinanceConfig builds the exchange adapter configuration.
func (c *Config) BinanceConfig() binance.Config {
	return binance.Config{
		APIKey:         c.Binance.APIKey,
		APISecret:      c.Binance.APISecret,
		Testnet:        c.Binance.Testnet,
		QtyPrecision:   c.Execution.QtyPrecision,
		PricePrecision: c.Execution.PricePrecision,
	}
}

// TraderConfig builds the decision loop configuration.
func (c *Config) TraderConfig() trader.Config {
	return trader.Config{
		Symbol:       c.Symbol,
		Interval:     c.Interval,
		RiskAmount:   c.Risk.RiskAmount,
		HistoryLimit: c.Cache.HistoryLimit,
		RecentTrades: c.Cache.RecentTrades,
	}
}

// envReader applies set environment variables and collects parse errors.
type envReader struct{ errs []error }

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt32(key string, dst *int32) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		*dst = int32(n)
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setFloatPtr(key string, dst **float64) {
	if _, ok := e.lookup(key); ok {
		var f float64
		before := len(e.errs)
		e.setFloat(key, &f)
		if len(e.errs) == before {
			*dst = &f
		}
	}
}

func (e *envReader) setIntPtr(key string, dst **int) {
	if _, ok := e.lookup(key); ok {
		var n int
		before := len(e.errs)
		e.setInt(key, &n)
		if len(e.errs) == before {
			*dst = &n
		}
	}
}
