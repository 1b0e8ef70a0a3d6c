// Package shard implements a single bounded buffer partition.
//
// A Shard keeps two disjoint sequences: pending records that have been pushed
// but not yet taken, and outgoing records that belong to the flush currently in
// flight. A Shard is full when both together reach its capacity; pushers wait
// on a condition variable until a flush completes.
package shard

import (
	"context"
	"sync"
	"time"

	"github.com/szibis/sa-log-shipper/internal/endpoint"
	"github.com/szibis/sa-log-shipper/internal/record"
)

// Option configures a Shard.
type Option func(*Shard)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Shard) { s.now = now }
}

// Shard is one independent buffer partition with its own queue, capacity,
// flush timer and endpoint ring.
type Shard struct {
	id            int
	capacity      int
	flushInterval time.Duration
	ring          *endpoint.Ring
	now           func() time.Time

	mu        sync.Mutex
	space     *sync.Cond
	pending   []record.Record
	outgoing  []record.Record
	lastFlush time.Time

	// flushMu serializes flushes of this shard.
	flushMu sync.Mutex
}

// New creates a Shard. capacity values below 1 are treated as 1.
func New(id, capacity int, flushInterval time.Duration, ring *endpoint.Ring, opts ...Option) *Shard {
	if capacity < 1 {
		capacity = 1
	}
	s := &Shard{
		id:            id,
		capacity:      capacity,
		flushInterval: flushInterval,
		ring:          ring,
		now:           time.Now,
		pending:       make([]record.Record, 0, capacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.space = sync.NewCond(&s.mu)
	s.lastFlush = s.now()
	return s
}

// ID returns the shard index.
func (s *Shard) ID() int { return s.id }

// Capacity returns the maximum number of pending plus outgoing records.
func (s *Shard) Capacity() int { return s.capacity }

// Ring returns the endpoint ring owned by this shard.
func (s *Shard) Ring() *endpoint.Ring { return s.ring }

// Push appends rec to the pending sequence. It never blocks; callers that
// must respect capacity use PushWait.
func (s *Shard) Push(rec record.Record) {
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	s.mu.Unlock()
}

// Full reports whether pending plus outgoing records reached capacity.
func (s *Shard) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullLocked()
}

func (s *Shard) fullLocked() bool {
	return len(s.pending)+len(s.outgoing) >= s.capacity
}

// NeedsFlush reports whether the shard should be flushed now. An empty shard
// never needs a flush; force flushes anything pending; otherwise the shard
// flushes when full or when the flush interval elapsed since the last flush.
func (s *Shard) NeedsFlush(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return false
	}
	if force || s.fullLocked() {
		return true
	}
	return s.now().Sub(s.lastFlush) >= s.flushInterval
}

// Drain moves every pending record into the outgoing set and returns a
// snapshot of them. Records pushed afterwards land in pending again.
func (s *Shard) Drain() record.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	s.outgoing = append(s.outgoing, s.pending...)
	batch := make(record.Batch, len(s.pending))
	copy(batch, s.pending)
	s.pending = make([]record.Record, 0, s.capacity)
	return batch
}

// MarkFlushed clears the outgoing set, stamps the flush time and wakes any
// pushers waiting for space.
func (s *Shard) MarkFlushed() {
	s.mu.Lock()
	s.outgoing = nil
	s.lastFlush = s.now()
	s.mu.Unlock()
	s.space.Broadcast()
}

// Requeue returns the outgoing records to the front of pending after an
// abandoned delivery, so a later flush sends them first.
func (s *Shard) Requeue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.outgoing) == 0 {
		return
	}
	merged := make([]record.Record, 0, len(s.outgoing)+len(s.pending))
	merged = append(merged, s.outgoing...)
	merged = append(merged, s.pending...)
	s.pending = merged
	s.outgoing = nil
}

// PushWait waits for space and pushes rec while still holding the shard
// lock, so concurrent producers cannot overfill the shard between the check
// and the append.
func (s *Shard) PushWait(ctx context.Context, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.waitLocked(ctx); err != nil {
		return err
	}
	s.pending = append(s.pending, rec)
	return nil
}

// waitLocked must be called with s.mu held.
func (s *Shard) waitLocked(ctx context.Context) error {
	if !s.fullLocked() {
		return nil
	}

	// sync.Cond has no context support; wake the waiters when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.space.Broadcast()
	})
	defer stop()

	for s.fullLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.space.Wait()
	}
	return nil
}

// LockFlush acquires the per-shard flush lock.
func (s *Shard) LockFlush() { s.flushMu.Lock() }

// TryLockFlush acquires the flush lock only if no flush is in flight.
func (s *Shard) TryLockFlush() bool { return s.flushMu.TryLock() }

// UnlockFlush releases the per-shard flush lock.
func (s *Shard) UnlockFlush() { s.flushMu.Unlock() }

// Len returns pending and outgoing record counts.
func (s *Shard) Len() (pending, outgoing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), len(s.outgoing)
}

// LastFlush returns the time of the last completed flush.
func (s *Shard) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}
