package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed is returned by a state store after Close.
var ErrStoreClosed = errors.New("state store is closed")

// VelocityStore keeps the rolling transaction instants of each user.
// Record is atomic per user id.
type VelocityStore interface {
	// Record drops every instant at or before at-window, appends at and
	// returns the number of instants retained for the user.
	Record(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Location is the last place a user was seen transacting.
type Location struct {
	Country string    `json:"country"`
	At      time.Time `json:"at"`
}

// TravelStore keeps the last known location of each user.
// Swap is atomic per user id.
type TravelStore interface {
	// Swap stores loc for the user and returns the previous location.
	// found is false when the user had no prior record.
	Swap(ctx context.Context, userID string, loc Location) (prev Location, found bool, err error)

	Ping(ctx context.Context) error
	Close() error
}

// StateConfig holds configuration for state store initialization.
type StateConfig struct {
	// Backend is "memory" or "redis"
	Backend string `toml:"backend"`

	// In-memory settings. MaxUsers is an upper bound on tracked users;
	// eviction runs per shard, so a shard may evict before the total is reached.
	Shards   int           `toml:"shards"`
	MaxUsers int           `toml:"max_users"`
	IdleTTL  time.Duration `toml:"idle_ttl"`

	// SweepInterval is how often idle users are evicted (memory backend).
	SweepInterval time.Duration `toml:"sweep_interval"`

	// Redis settings
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}
