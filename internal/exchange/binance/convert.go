package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// klineFrame is the payload of <symbol>@kline_<interval>.
type klineFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsFinal   bool   `json:"x"`
	} `json:"k"`
}

// parseKlineFrame decodes one stream message. closed is false for in-progress
// updates, which the caller drops.
func parseKlineFrame(msg []byte) (c model.Candle, closed bool, err error) {
	var f klineFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return model.Candle{}, false, fmt.Errorf("decode kline frame: %w", err)
	}
	if f.EventType != "kline" {
		return model.Candle{}, false, nil
	}
	if !f.Kline.IsFinal {
		return model.Candle{}, false, nil
	}

	c = model.Candle{
		Symbol:    f.Symbol,
		OpenTime:  f.Kline.StartTime,
		CloseTime: f.Kline.CloseTime,
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", f.Kline.Open, &c.Open},
		{"high", f.Kline.High, &c.High},
		{"low", f.Kline.Low, &c.Low},
		{"close", f.Kline.Close, &c.Close},
		{"volume", f.Kline.Volume, &c.Volume},
	}
	for _, fld := range fields {
		v, err := strconv.ParseFloat(fld.raw, 64)
		if err != nil {
			return model.Candle{}, false, fmt.Errorf("kline %s %q: %w", fld.name, fld.raw, err)
		}
		*fld.dst = v
	}
	return c, true, nil
}

// klineToCandle converts a REST kline.
func klineToCandle(symbol string, k *futures.Kline) (model.Candle, error) {
	c := model.Candle{Symbol: symbol, OpenTime: k.OpenTime, CloseTime: k.CloseTime}
	var err error
	if c.Open, err = parseFloat("open", k.Open); err != nil {
		return c, err
	}
	if c.High, err = parseFloat("high", k.High); err != nil {
		return c, err
	}
	if c.Low, err = parseFloat("low", k.Low); err != nil {
		return c, err
	}
	if c.Close, err = parseFloat("close", k.Close); err != nil {
		return c, err
	}
	if c.Volume, err = parseFloat("volume", k.Volume); err != nil {
		return c, err
	}
	return c, nil
}

func parseFloat(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return v, nil
}

// formatFixed renders v with exactly prec decimals, the way the exchange
// filters expect it.
func formatFixed(v float64, prec int32) string {
	return decimal.NewFromFloat(v).StringFixed(prec)
}

func sideType(s model.Side) futures.SideType {
	if s == model.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

// streamName returns the raw stream path for symbol/interval.
func streamName(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + strings.ToLower(interval)
}

// apiErrorCode extracts the exchange error code, 0 when err is not an API error.
func apiErrorCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
