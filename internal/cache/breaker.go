package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker guarding a remote cache.
type BreakerConfig struct {
	// Failures is the number of consecutive errors that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
}

// BreakerProvider short-circuits a failing cache. While open, reads report a
// miss and writes are dropped, so analyses never wait on a dead server.
type BreakerProvider struct {
	next   Provider
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerProvider wraps next with a circuit breaker.
func NewBreakerProvider(next Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "result-cache",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerProvider{next: next, cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// State reports the breaker state name.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// Get returns ErrCacheMiss while the circuit is open.
func (b *BreakerProvider) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if rejected(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Set drops the write while the circuit is open.
func (b *BreakerProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	if rejected(err) {
		return nil
	}
	return err
}

// SetNX reports false while the circuit is open.
func (b *BreakerProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SetNX(ctx, key, value, ttl)
	})
	if rejected(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// Del drops the delete while the circuit is open.
func (b *BreakerProvider) Del(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Del(ctx, key)
	})
	if rejected(err) {
		return nil
	}
	return err
}

// Close closes the wrapped provider.
func (b *BreakerProvider) Close() error {
	return b.next.Close()
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
