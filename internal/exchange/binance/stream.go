package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"
)

// Stream delivers closed klines of one symbol/interval. A broken session is
// re-dialled after a fixed delay for as long as the subscription's context
// lives; in-progress kline updates are dropped.
type Stream struct {
	cfg    Config
	dialer websocket.Dialer
	log    *slog.Logger

	// Optional metrics hooks
	OnReconnect func(err error)
	OnDropped   func()
}

// NewStream creates a kline stream client.
func NewStream(cfg Config, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		cfg:    cfg.withDefaults(),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.With(slog.String("component", "kline_stream")),
	}
}

// Subscribe dials the stream once and returns an error if that first dial
// fails. After that the channel stays open until ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context, symbol, interval string) (<-chan model.Candle, error) {
	url := strings.TrimRight(s.cfg.WSBaseURL, "/") + "/" + streamName(symbol, interval)

	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("kline stream: dial %s: %w", url, err)
	}
	s.log.Info("connected", slog.String("url", url))

	out := make(chan model.Candle, 16)
	go func() {
		defer close(out)
		for {
			err := s.session(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("stream session ended, reconnecting",
				slog.String("error", err.Error()), slog.Duration("backoff", s.cfg.ReconnectDelay))
			if s.OnReconnect != nil {
				s.OnReconnect(err)
			}

			conn = nil
			for conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.ReconnectDelay):
				}
				c, _, err := s.dialer.DialContext(ctx, url, nil)
				if err != nil {
					s.log.Warn("reconnect failed", slog.String("error", err.Error()))
					continue
				}
				conn = c
			}
			s.log.Info("reconnected", slog.String("url", url))
		}
	}()
	return out, nil
}

// session reads frames until the connection breaks or ctx ends. It always
// closes conn.
func (s *Stream) session(ctx context.Context, conn *websocket.Conn, out chan<- model.Candle) error {
	done := make(chan struct{})
	defer close(done)

	readTimeout := 3 * s.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					s.log.Debug("ping failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		c, closed, err := parseKlineFrame(msg)
		if err != nil {
			s.log.Warn("bad frame", slog.String("error", err.Error()))
			if s.OnDropped != nil {
				s.OnDropped()
			}
			continue
		}
		if !closed {
			continue
		}
		s.log.Debug("candle closed", slog.Int64("open_time", c.OpenTime), slog.Float64("close", c.Close))

		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
