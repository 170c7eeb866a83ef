// Package redis hands out position group ids from a Redis counter, for
// deployments where more than one process shares the id space.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis sequencer.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Key      string // counter key, e.g. "bandtrader:SOLUSDT:group_seq"

	// OnBreakerChange is called after every breaker state change. Optional.
	OnBreakerChange func(from, to BreakerState)
}

// raiseFloor sets the counter to ARGV[1] when it is lower.
var raiseFloor = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then
  redis.call('SET', KEYS[1], floor)
  return floor
end
return cur
`)

// Sequencer implements GroupSequencer with INCR, which is atomic across
// every client of the same key.
type Sequencer struct {
	client  *goredis.Client
	key     string
	breaker *Breaker
}

// Client returns the underlying Redis client for health checks.
func (s *Sequencer) Client() *goredis.Client { return s.client }

// New connects and pings the server.
func New(cfg Config) (*Sequencer, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis sequencer: empty key")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis sequencer connected", slog.String("addr", cfg.Addr), slog.String("key", cfg.Key))
	b := NewBreaker(3, 10*time.Second)
	b.OnStateChange = func(from, to BreakerState) {
		slog.Warn("redis breaker state change", slog.String("from", from.String()), slog.String("to", to.String()))
		if cfg.OnBreakerChange != nil {
			cfg.OnBreakerChange(from, to)
		}
	}
	return &Sequencer{client: client, key: cfg.Key, breaker: b}, nil
}

// NextGroupID increments the counter and returns the new value.
func (s *Sequencer) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	err := s.breaker.Do(func() error {
		v, err := s.client.Incr(ctx, s.key).Result()
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", s.key, err)
	}
	return id, nil
}

// EnsureFloor raises the counter to at least floor, so ids never collide
// with groups already stored in the ledger. Returns the resulting value.
func (s *Sequencer) EnsureFloor(ctx context.Context, floor int64) (int64, error) {
	v, err := raiseFloor.Run(ctx, s.client, []string{s.key}, floor).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis raise floor %s: %w", s.key, err)
	}
	return v, nil
}

// Close closes the client.
func (s *Sequencer) Close() error {
	return s.client.Close()
}
