package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// recordScript prunes, appends and counts a user's sorted set atomically.
// Scores are unix microseconds; ZREMRANGEBYSCORE bounds are inclusive.
var recordScript = redis.NewScript(`
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return redis.call('ZCARD', KEYS[1])
`)

// swapScript returns the previous location and stores the new one atomically.
var swapScript = redis.NewScript(`
	local prev = redis.call('GET', KEYS[1])
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return prev
`)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisVelocityStore implements VelocityStore on Redis sorted sets so
// several service replicas share one view of each user.
// The client is owned by the caller.
type RedisVelocityStore struct {
	client *redis.Client
	prefix string
	minTTL time.Duration
}

// NewRedisVelocityStore creates a velocity store. Keys expire after the
// larger of the velocity window and minTTL.
func NewRedisVelocityStore(client *redis.Client, prefix string, minTTL time.Duration) *RedisVelocityStore {
	return &RedisVelocityStore{client: client, prefix: prefix, minTTL: minTTL}
}

// Record runs the prune-append-count script for the user.
func (s *RedisVelocityStore) Record(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	ttl := window
	if s.minTTL > ttl {
		ttl = s.minTTL
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	cutoff := at.Add(-window).UnixMicro()
	key := s.prefix + ":velocity:" + userID

	count, err := recordScript.Run(ctx, s.client, []string{key},
		cutoff, at.UnixMicro(), uuid.New().String(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("velocity record for %s: %w", userID, err)
	}
	return count, nil
}

// Ping checks Redis connectivity.
func (s *RedisVelocityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisVelocityStore) Close() error {
	return nil
}

// RedisTravelStore implements TravelStore on Redis strings.
// The client is owned by the caller.
type RedisTravelStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTravelStore creates a travel store whose keys expire after ttl
// without activity. A non-positive ttl defaults to 24 hours.
func NewRedisTravelStore(client *redis.Client, prefix string, ttl time.Duration) *RedisTravelStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTravelStore{client: client, prefix: prefix, ttl: ttl}
}

// Swap runs the get-and-set script for the user.
func (s *RedisTravelStore) Swap(ctx context.Context, userID string, loc domain.Location) (domain.Location, bool, error) {
	key := s.prefix + ":travel:" + userID

	raw, err := swapScript.Run(ctx, s.client, []string{key},
		encodeLocation(loc), s.ttl.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return domain.Location{}, false, nil
	}
	if err != nil {
		return domain.Location{}, false, fmt.Errorf("travel swap for %s: %w", userID, err)
	}

	prev, err := decodeLocation(raw)
	if err != nil {
		return domain.Location{}, false, fmt.Errorf("travel swap for %s: %w", userID, err)
	}
	return prev, true, nil
}

// Ping checks Redis connectivity.
func (s *RedisTravelStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisTravelStore) Close() error {
	return nil
}

func encodeLocation(loc domain.Location) string {
	return loc.Country + "|" + strconv.FormatInt(loc.At.UnixNano(), 10)
}

func decodeLocation(raw string) (domain.Location, error) {
	country, nanos, ok := strings.Cut(raw, "|")
	if !ok {
		return domain.Location{}, fmt.Errorf("malformed location %q", raw)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("malformed location %q: %w", raw, err)
	}
	return domain.Location{Country: country, At: time.Unix(0, n).UTC()}, nil
}
