// cmd/backtest replays recent futures klines through the decision loop with
// the paper gateway, to check signals and sizing without sending orders.
//
// Usage:
//
//	go run ./cmd/backtest --limit=1500 --warmup=100 --speed=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/config"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/exchange/binance"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/execution"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/indicator"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/logger"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/marketdata/replay"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/ringbuf"
	sqlitestore "github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/store/sqlite"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/strategy"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/trader"
)

// history serves a fixed slice as the seed source.
type history []model.Candle

func (h history) FetchHistory(context.Context, string, string, int) ([]model.Candle, error) {
	return h, nil
}

func main() {
	limit := flag.Int("limit", 1000, "Klines to download (max 1500)")
	warmup := flag.Int("warmup", 100, "Klines used to seed the cache before replay")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	dbPath := flag.String("db", "", "Ledger path (default: a temporary file)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	cfg.TradingMode = config.ModePaper
	lg := logger.Init("bandtrader-backtest", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Data ----
	candles, err := binance.NewGateway(cfg.BinanceConfig(), lg).FetchHistory(ctx, cfg.Symbol, cfg.Interval, *limit)
	if err != nil {
		log.Fatalf("[backtest] fetch klines: %v", err)
	}
	closed := candles[:0]
	for _, c := range candles {
		if c.ClosedBefore(time.Now()) {
			closed = append(closed, c)
		}
	}
	if *warmup < 1 {
		log.Fatal("[backtest] --warmup must be at least 1")
	}
	if len(closed) <= *warmup {
		log.Fatalf("[backtest] need more than %d closed klines, got %d", *warmup, len(closed))
	}
	seed, rest := closed[:*warmup], closed[*warmup:]

	// ---- Ledger ----
	if *dbPath == "" {
		dir, err := os.MkdirTemp("", "bandtrader-backtest")
		if err != nil {
			log.Fatalf("[backtest] temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		*dbPath = filepath.Join(dir, "ledger.db")
	}
	ledger, err := sqlitestore.Open(*dbPath, cfg.Symbol)
	if err != nil {
		log.Fatalf("[backtest] ledger: %v", err)
	}
	defer ledger.Close()

	// ---- Loop, clocked by candle time ----
	paper := execution.NewPaperGateway(cfg.Paper.SlippageBps, cfg.Paper.Balance, lg)
	paper.Closer = ledger
	controller := execution.NewController(cfg.ExecutionConfig(), paper, ledger, ledger, nil, lg)
	controller.OnOutcome = paper.Track
	at := time.UnixMilli(seed[len(seed)-1].CloseTime + 1)
	exits := 0

	tcfg := cfg.TraderConfig()
	tcfg.HistoryLimit = len(seed)
	t, err := trader.New(tcfg, trader.Deps{
		Cache:     ringbuf.New(cfg.Cache.Size),
		Engine:    indicator.NewEngine(cfg.IndicatorConfig()),
		Evaluator: strategy.NewEvaluator(cfg.StrategyConfig()),
		Executor:  controller,
		Risk:      paper,
		Ledger:    ledger,
		OnCandle:  func(c model.Candle) { exits += len(paper.Observe(ctx, c)) },
		Clock:     func() time.Time { return at },
		Log:       lg,
	})
	if err != nil {
		log.Fatalf("[backtest] trader: %v", err)
	}
	if _, err := t.Seed(ctx, history(seed)); err != nil {
		log.Fatalf("[backtest] seed: %v", err)
	}

	ch, _ := replay.New(rest, *speed, lg).Subscribe(ctx, cfg.Symbol, cfg.Interval)

	var (
		processed int
		reasons   = map[strategy.Reason]int{}
		states    = map[execution.State]int{}
		skipped   int
	)
	for c := range ch {
		at = time.UnixMilli(c.CloseTime + 1)
		rep := t.Cycle(ctx, c)
		processed++
		if rep.Err != nil {
			skipped++
			continue
		}
		reasons[rep.Decision.Reason]++
		if rep.Outcome != nil {
			states[rep.Outcome.State]++
		}
	}

	trades, err := ledger.RecentTrades(context.Background(), 1<<20)
	if err != nil {
		lg.Error("read ledger", slog.String("error", err.Error()))
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol/interval:   %-16s ║\n", cfg.Symbol+" "+cfg.Interval)
	fmt.Printf("║  Variant:           %-16s ║\n", cfg.Strategy.Variant)
	fmt.Printf("║  Candles processed: %-16d ║\n", processed)
	fmt.Printf("║  Cycles skipped:    %-16d ║\n", skipped)
	fmt.Printf("║  Groups recorded:   %-16d ║\n", len(trades))
	fmt.Printf("║  Paper fills:       %-16d ║\n", len(paper.GetFills()))
	fmt.Printf("║  Positions closed:  %-16d ║\n", exits)
	fmt.Printf("║  Positions open:    %-16d ║\n", paper.OpenPositions())
	fmt.Println("╠══════════════════════════════════════╣")
	for r, n := range reasons {
		fmt.Printf("║  %-18s %-16d ║\n", string(r)+":", n)
	}
	for s, n := range states {
		fmt.Printf("║  %-18s %-16d ║\n", string(s)+":", n)
	}
	fmt.Println("╚══════════════════════════════════════╝")
}
