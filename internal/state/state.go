package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Stores bundles the two state stores the stateful rules depend on.
type Stores struct {
	Velocity domain.VelocityStore
	Travel   domain.TravelStore

	client *redis.Client
}

// New creates both stores based on configuration.
// "memory" returns sharded in-process stores; "redis" returns stores sharing
// one Redis client.
func New(cfg domain.StateConfig) (*Stores, error) {
	switch cfg.Backend {
	case "memory", "":
		return &Stores{
			Velocity: NewMemoryVelocityStore(cfg.Shards, cfg.MaxUsers, cfg.IdleTTL),
			Travel:   NewMemoryTravelStore(cfg.Shards, cfg.MaxUsers, cfg.IdleTTL),
		}, nil

	case "redis":
		client, err := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = "creditguard"
		}
		return &Stores{
			Velocity: NewRedisVelocityStore(client, prefix, 0),
			Travel:   NewRedisTravelStore(client, prefix, cfg.IdleTTL),
			client:   client,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

// Sweeper is implemented by stores that evict idle users on demand.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Sizer is implemented by stores that can report how many users they track.
type Sizer interface {
	Len() int
}

// Sweep evicts idle users from every store that supports it.
func (s *Stores) Sweep(now time.Time) int {
	removed := 0
	for _, store := range []any{s.Velocity, s.Travel} {
		if sw, ok := store.(Sweeper); ok {
			removed += sw.Sweep(now)
		}
	}
	return removed
}

// StartJanitor sweeps idle users every interval until ctx is done.
// It does nothing for stores that expire keys themselves.
func (s *Stores) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.client != nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := s.Sweep(now); removed > 0 {
					slog.Debug("evicted idle users from state stores", "removed", removed)
				}
			}
		}
	}()
}

// Ping checks both stores.
func (s *Stores) Ping(ctx context.Context) error {
	if err := s.Velocity.Ping(ctx); err != nil {
		return fmt.Errorf("velocity store: %w", err)
	}
	if err := s.Travel.Ping(ctx); err != nil {
		return fmt.Errorf("travel store: %w", err)
	}
	return nil
}

// Close closes both stores and the shared Redis client, if any.
func (s *Stores) Close() error {
	_ = s.Velocity.Close()
	_ = s.Travel.Close()
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
