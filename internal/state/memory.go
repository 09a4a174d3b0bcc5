// Package state provides the per-user state stores behind the stateful rules.
package state

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// MemoryVelocityStore is a sharded in-process VelocityStore.
// Users on different shards never contend for a lock.
type MemoryVelocityStore struct {
	users  *shardedLRU[[]time.Time]
	closed atomic.Bool
}

// NewMemoryVelocityStore creates a velocity store bounded to maxUsers users,
// evicting the least recently seen and any idle for longer than idleTTL.
func NewMemoryVelocityStore(shards, maxUsers int, idleTTL time.Duration) *MemoryVelocityStore {
	return &MemoryVelocityStore{
		users: newShardedLRU[[]time.Time](shards, maxUsers, idleTTL),
	}
}

// Record prunes, appends and counts in one critical section per user.
func (s *MemoryVelocityStore) Record(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, domain.ErrStoreClosed
	}

	var count int
	s.users.update(userID, func(history []time.Time, _ bool) []time.Time {
		cutoff := at.Add(-window)
		kept := history[:0]
		for _, ts := range history {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		kept = append(kept, at)
		count = len(kept)
		return kept
	})

	return count, nil
}

// Sweep evicts idle users and returns how many were removed.
func (s *MemoryVelocityStore) Sweep(now time.Time) int {
	return s.users.sweep(now)
}

// Len returns the number of tracked users.
func (s *MemoryVelocityStore) Len() int {
	return s.users.len()
}

// Ping checks store health.
func (s *MemoryVelocityStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	return nil
}

// Close drops all state.
func (s *MemoryVelocityStore) Close() error {
	s.closed.Store(true)
	s.users.reset()
	return nil
}

// MemoryTravelStore is a sharded in-process TravelStore.
type MemoryTravelStore struct {
	users  *shardedLRU[domain.Location]
	closed atomic.Bool
}

// NewMemoryTravelStore creates a travel store with the same bounds as
// NewMemoryVelocityStore.
func NewMemoryTravelStore(shards, maxUsers int, idleTTL time.Duration) *MemoryTravelStore {
	return &MemoryTravelStore{
		users: newShardedLRU[domain.Location](shards, maxUsers, idleTTL),
	}
}

// Swap reads the previous location and stores loc under one lock.
func (s *MemoryTravelStore) Swap(ctx context.Context, userID string, loc domain.Location) (domain.Location, bool, error) {
	if s.closed.Load() {
		return domain.Location{}, false, domain.ErrStoreClosed
	}

	var prev domain.Location
	var found bool
	s.users.update(userID, func(current domain.Location, ok bool) domain.Location {
		prev, found = current, ok
		return loc
	})

	return prev, found, nil
}

// Sweep evicts idle users and returns how many were removed.
func (s *MemoryTravelStore) Sweep(now time.Time) int {
	return s.users.sweep(now)
}

// Len returns the number of tracked users.
func (s *MemoryTravelStore) Len() int {
	return s.users.len()
}

// Ping checks store health.
func (s *MemoryTravelStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	return nil
}

// Close drops all state.
func (s *MemoryTravelStore) Close() error {
	s.closed.Store(true)
	s.users.reset()
	return nil
}
