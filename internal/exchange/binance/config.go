// Package binance connects the trader to Binance USDⓈ-M futures: orders,
// account risk and kline history over REST (go-binance), closed candles over
// the kline websocket stream.
package binance

import "time"

const (
	defaultRESTBaseURL = "https://fapi.binance.com"
	defaultWSBaseURL   = "wss://fstream.binance.com/ws"
	testnetRESTBaseURL = "https://testnet.binancefuture.com"
	testnetWSBaseURL   = "wss://stream.binancefuture.com/ws"
)

// Config holds the exchange connection parameters.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	RESTBaseURL string
	WSBaseURL   string

	QtyPrecision   int32 // decimals sent in the quantity field
	PricePrecision int32 // decimals sent in stopPrice/price

	ReconnectDelay time.Duration // fixed back-off between websocket sessions
	PingInterval   time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
		if out.Testnet {
			out.RESTBaseURL = testnetRESTBaseURL
		}
	}
	if out.WSBaseURL == "" {
		out.WSBaseURL = defaultWSBaseURL
		if out.Testnet {
			out.WSBaseURL = testnetWSBaseURL
		}
	}
	if out.QtyPrecision < 0 {
		out.QtyPrecision = 0
	}
	if out.PricePrecision <= 0 {
		out.PricePrecision = 2
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = 2 * time.Second
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 20 * time.Second
	}
	return out
}
