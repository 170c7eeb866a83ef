package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/portfolio"
)

const maxHistoryLimit = 1500

// Gateway implements OrderGateway, RiskSource and HistorySource over the
// futures REST API.
type Gateway struct {
	cfg    Config
	client *futures.Client
	log    *slog.Logger
}

// NewGateway creates a REST gateway. Keys may be empty for history-only use.
func NewGateway(cfg Config, log *slog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	client.BaseURL = cfg.RESTBaseURL
	return &Gateway{cfg: cfg, client: client, log: log.With(slog.String("component", "binance"))}
}

// SetLeverage changes the symbol's leverage; called once at startup.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	res, err := g.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return g.wrap("set leverage", err)
	}
	g.log.Info("leverage set", slog.String("symbol", symbol), slog.Int("leverage", res.Leverage))
	return nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, qty float64) (model.OrderAck, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatFixed(qty, g.cfg.QtyPrecision)).
		NewClientOrderID(uuid.NewString())
	return g.submit(ctx, "market", svc)
}

func (g *Gateway) PlaceStopOrder(ctx context.Context, symbol string, side model.Side, stopPrice, qty float64) (model.OrderAck, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatFixed(stopPrice, g.cfg.PricePrecision)).
		Quantity(formatFixed(qty, g.cfg.QtyPrecision)).
		TimeInForce(futures.TimeInForceTypeGTC).
		NewClientOrderID(uuid.NewString())
	return g.submit(ctx, "stop", svc)
}

// PlaceTargetOrder sends a TAKE_PROFIT (stop-limit) order: triggered at
// stopPrice, resting at limitPrice.
func (g *Gateway) PlaceTargetOrder(ctx context.Context, symbol string, side model.Side, stopPrice, limitPrice, qty float64) (model.OrderAck, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(side)).
		Type(futures.OrderTypeTakeProfit).
		StopPrice(formatFixed(stopPrice, g.cfg.PricePrecision)).
		Price(formatFixed(limitPrice, g.cfg.PricePrecision)).
		Quantity(formatFixed(qty, g.cfg.QtyPrecision)).
		TimeInForce(futures.TimeInForceTypeGTC).
		NewClientOrderID(uuid.NewString())
	return g.submit(ctx, "target", svc)
}

func (g *Gateway) submit(ctx context.Context, what string, svc *futures.CreateOrderService) (model.OrderAck, error) {
	res, err := svc.Do(ctx)
	if err != nil {
		return model.OrderAck{}, g.wrap(what+" order", err)
	}
	ack := model.OrderAck{OrderID: strconv.FormatInt(res.OrderID, 10)}
	if p, err := strconv.ParseFloat(res.AvgPrice, 64); err == nil && p > 0 {
		ack.FillPrice = p
	}
	g.log.Info("order accepted",
		slog.String("kind", what),
		slog.String("order_id", ack.OrderID),
		slog.String("client_order_id", res.ClientOrderID),
		slog.String("status", string(res.Status)))
	return ack, nil
}

// GetFillPrice reports the average fill price once the order is FILLED.
func (g *Gateway) GetFillPrice(ctx context.Context, symbol, orderID string) (float64, bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("binance: bad order id %q: %w", orderID, err)
	}
	o, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return 0, false, g.wrap("get order", err)
	}
	if o.Status != futures.OrderStatusTypeFilled {
		return 0, false, nil
	}
	p, err := strconv.ParseFloat(o.AvgPrice, 64)
	if err != nil || p <= 0 {
		return 0, false, nil
	}
	return p, true, nil
}

// PortfolioRisk counts every non-flat position on the account as risking
// riskAmount and relates that to the wallet balance.
func (g *Gateway) PortfolioRisk(ctx context.Context, riskAmount float64) (float64, error) {
	acc, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, g.wrap("get account", err)
	}
	balance, err := strconv.ParseFloat(acc.TotalWalletBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: wallet balance %q: %w", acc.TotalWalletBalance, err)
	}
	return portfolio.PercentAtRisk(balance, openPositions(acc.Positions), riskAmount), nil
}

func openPositions(positions []*futures.AccountPosition) int {
	n := 0
	for _, p := range positions {
		if p == nil {
			continue
		}
		if amt, err := strconv.ParseFloat(p.PositionAmt, 64); err == nil && amt != 0 {
			n++
		}
	}
	return n
}

// FetchHistory returns up to limit klines, oldest first. The last one is
// usually still open; the cache filters it by close time.
func (g *Gateway) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	klines, err := g.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, g.wrap("klines", err)
	}
	out := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(symbol, k)
		if err != nil {
			return nil, fmt.Errorf("binance: kline %d: %w", k.OpenTime, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (g *Gateway) wrap(op string, err error) error {
	if code := apiErrorCode(err); code != 0 {
		return fmt.Errorf("binance %s (code %d): %w", op, code, err)
	}
	return fmt.Errorf("binance %s: %w", op, err)
}
