package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/config"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/exchange/binance"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/execution"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/logger"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/metrics"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/notification"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/ringbuf"
	redisstore "github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/store/redis"
	sqlitestore "github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/store/sqlite"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/trader"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[bandtrader] %v", err)
	}
	lg := logger.Init("bandtrader", logger.ParseLevel(cfg.LogLevel))
	lg.Info("starting",
		slog.String("symbol", cfg.Symbol),
		slog.String("interval", cfg.Interval),
		slog.String("mode", cfg.TradingMode),
		slog.String("variant", cfg.Strategy.Variant))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lg.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)

	// ---- Ledger ----
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	ledger, err := sqlitestore.Open(cfg.Storage.SQLitePath, cfg.Symbol)
	if err != nil {
		return err
	}
	defer ledger.Close()
	lg.Info("ledger ready", slog.String("path", cfg.Storage.SQLitePath))

	// ---- Group id sequencer: Redis when configured, the ledger otherwise ----
	var seq model.GroupSequencer = ledger
	var redisSeq *redisstore.Sequencer
	if cfg.Storage.RedisAddr != "" {
		redisSeq, err = redisstore.New(redisstore.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Key:      "bandtrader:" + cfg.Symbol + ":group_seq",
			OnBreakerChange: func(_, to redisstore.BreakerState) {
				prom.RedisBreakerState.Set(float64(to))
			},
		})
		if err != nil {
			return err
		}
		defer redisSeq.Close()

		floor, err := ledger.MaxGroupID(ctx)
		if err != nil {
			return err
		}
		cur, err := redisSeq.EnsureFloor(ctx, floor)
		if err != nil {
			return err
		}
		lg.Info("redis sequencer ready", slog.Int64("ledger_max", floor), slog.Int64("counter", cur))
		seq = redisSeq
		health.SetRedisEnabled(true)
	}

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier(lg)}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Alerts.WebhookURL, "bandtrader-"+cfg.Symbol))
	}
	if cfg.Alerts.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID))
	}

	// ---- Exchange ----
	bcfg := cfg.BinanceConfig()
	exchange := binance.NewGateway(bcfg, lg)

	var (
		gateway model.OrderGateway
		risk    model.RiskSource
		paper   *execution.PaperGateway
	)
	switch cfg.TradingMode {
	case config.ModeLive:
		if cfg.Execution.Leverage > 0 {
			if err := exchange.SetLeverage(ctx, cfg.Symbol, cfg.Execution.Leverage); err != nil {
				return err
			}
		}
		gateway, risk = exchange, exchange
	default:
		paper = execution.NewPaperGateway(cfg.Paper.SlippageBps, cfg.Paper.Balance, lg)
		paper.Closer = ledger
		gateway, risk = paper, paper
		lg.Warn("paper trading: orders are simulated", slog.Float64("balance", cfg.Paper.Balance))
	}

	controller := execution.NewController(cfg.ExecutionConfig(), gateway, ledger, seq, notifiers, lg)
	controller.OnOrder = func(kind model.OrderKind, err error) {
		prom.OrdersTotal.WithLabelValues(string(kind), metrics.OrderResult(err)).Inc()
	}
	controller.OnLedgerError = func(kind model.OrderKind) {
		prom.LedgerFailures.WithLabelValues(string(kind)).Inc()
	}
	if paper != nil {
		controller.OnOutcome = paper.Track
	}

	stream := binance.NewStream(bcfg, lg)
	stream.OnReconnect = func(error) {
		prom.WSReconnects.Inc()
		health.SetWSConnected(false)
	}
	stream.OnDropped = func() { prom.DroppedFrames.Inc() }

	// ---- Decision loop ----
	onCandle := func(c model.Candle) {
		health.SetWSConnected(true)
		if paper != nil {
			paper.Observe(ctx, c)
		}
	}
	t, err := trader.New(cfg.TraderConfig(), trader.Deps{
		Cache:     ringbuf.New(cfg.Cache.Size),
		Engine:    indicator.NewEngine(cfg.IndicatorConfig()),
		Evaluator: strategy.NewEvaluator(cfg.StrategyConfig()),
		Executor:  controller,
		Risk:      risk,
		Ledger:    ledger,
		Metrics:   prom,
		Health:    health,
		OnCandle:  onCandle,
		Log:       lg,
	})
	if err != nil {
		return err
	}
	if _, err := t.Seed(ctx, exchange); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(metricsSrv.ListenAndServe)
	g.Go(func() error {
		health.RunLivenessChecker(gctx, redisClient(redisSeq), ledger.DB(), 10*time.Second)
		return nil
	})
	g.Go(func() error {
		return t.Run(gctx, stream)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func redisClient(s *redisstore.Sequencer) *goredis.Client {
	if s == nil {
		return nil
	}
	return s.Client()
}
