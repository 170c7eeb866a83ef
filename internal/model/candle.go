package model

import "time"

// Candle is one closed OHLCV kline for the traded instrument.
// OpenTime and CloseTime are epoch milliseconds as reported by the exchange.
type Candle struct {
	Symbol    string  `json:"symbol"`
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// ClosedBefore reports whether the candle's close time is strictly before now.
// A zero CloseTime is treated as unknown and never admitted.
func (c *Candle) ClosedBefore(now time.Time) bool {
	return c.CloseTime > 0 && c.CloseTime < now.UnixMilli()
}
