package shard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/szibis/sa-log-shipper/internal/endpoint"
	"github.com/szibis/sa-log-shipper/internal/record"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestShard(t *testing.T, capacity int, interval time.Duration, clock *fakeClock) *Shard {
	t.Helper()
	ring, err := endpoint.NewRing([]string{"http://collector:8106/sa"}, 0, endpoint.WithLabel("shard-test"))
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	return New(0, capacity, interval, ring, opts...)
}

func rec(i int) record.Record {
	return record.Record{"seq": i}
}

func TestNew_MinimumCapacity(t *testing.T) {
	s := newTestShard(t, 0, time.Second, nil)
	if s.Capacity() != 1 {
		t.Errorf("expected capacity clamped to 1, got %d", s.Capacity())
	}
}

func TestNeedsFlush_Empty(t *testing.T) {
	s := newTestShard(t, 10, time.Second, nil)
	if s.NeedsFlush(false) || s.NeedsFlush(true) {
		t.Error("empty shard must never need a flush")
	}
}

func TestNeedsFlush_Force(t *testing.T) {
	s := newTestShard(t, 10, time.Hour, nil)
	s.Push(rec(1))
	if s.NeedsFlush(false) {
		t.Error("one record under capacity before interval must not flush")
	}
	if !s.NeedsFlush(true) {
		t.Error("force must flush any pending records")
	}
}

func TestNeedsFlush_SizeTriggerDominatesTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestShard(t, 3, time.Hour, clock)

	s.Push(rec(1))
	s.Push(rec(2))
	if s.NeedsFlush(false) {
		t.Fatal("below capacity must not flush before the interval")
	}
	s.Push(rec(3))
	if !s.Full() {
		t.Fatal("expected shard to be full at capacity")
	}
	if !s.NeedsFlush(false) {
		t.Error("full shard must flush even though the interval has not elapsed")
	}
}

func TestNeedsFlush_TimeTrigger(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestShard(t, 10, 2*time.Second, clock)

	s.Push(rec(1))
	clock.Advance(1999 * time.Millisecond)
	if s.NeedsFlush(false) {
		t.Fatal("must not flush before the interval")
	}
	clock.Advance(time.Millisecond)
	if !s.NeedsFlush(false) {
		t.Error("must flush once the interval elapsed")
	}
}

func TestDrain_MovesPendingToOutgoing(t *testing.T) {
	s := newTestShard(t, 4, time.Hour, nil)
	for i := 0; i < 3; i++ {
		s.Push(rec(i))
	}

	batch := s.Drain()
	if batch.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", batch.Len())
	}
	for i, r := range batch {
		if r["seq"] != i {
			t.Errorf("batch[%d] = %v, insertion order not preserved", i, r["seq"])
		}
	}

	pending, outgoing := s.Len()
	if pending != 0 || outgoing != 3 {
		t.Errorf("expected 0 pending / 3 outgoing, got %d / %d", pending, outgoing)
	}

	// New pushes land in pending while the batch is held.
	s.Push(rec(3))
	pending, outgoing = s.Len()
	if pending != 1 || outgoing != 3 {
		t.Errorf("expected 1 pending / 3 outgoing, got %d / %d", pending, outgoing)
	}
	if !s.Full() {
		t.Error("pending+outgoing reaching capacity must count as full")
	}

	if again := s.Drain(); again.Len() != 1 || again[0]["seq"] != 3 {
		t.Errorf("second drain should only contain the new record, got %v", again)
	}
}

func TestDrain_SnapshotIsIndependent(t *testing.T) {
	s := newTestShard(t, 4, time.Hour, nil)
	s.Push(rec(0))
	batch := s.Drain()
	s.Push(rec(1))
	if batch.Len() != 1 || batch[0]["seq"] != 0 {
		t.Errorf("snapshot changed after later push: %v", batch)
	}
}

func TestMarkFlushed_ClearsOutgoingAndStamps(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestShard(t, 2, time.Second, clock)
	s.Push(rec(0))
	s.Drain()

	clock.Advance(5 * time.Second)
	s.MarkFlushed()

	pending, outgoing := s.Len()
	if pending != 0 || outgoing != 0 {
		t.Errorf("expected empty shard, got %d / %d", pending, outgoing)
	}
	if !s.LastFlush().Equal(clock.Now()) {
		t.Errorf("lastFlush = %v, want %v", s.LastFlush(), clock.Now())
	}
}

func TestRequeue_RestoresOrder(t *testing.T) {
	s := newTestShard(t, 10, time.Hour, nil)
	s.Push(rec(0))
	s.Push(rec(1))
	s.Drain()
	s.Push(rec(2))

	s.Requeue()

	pending, outgoing := s.Len()
	if pending != 3 || outgoing != 0 {
		t.Fatalf("expected 3 pending / 0 outgoing, got %d / %d", pending, outgoing)
	}
	batch := s.Drain()
	for i, r := range batch {
		if r["seq"] != i {
			t.Errorf("batch[%d] = %v, requeued records must come first", i, r["seq"])
		}
	}

	// Nothing outgoing is a no-op.
	s.MarkFlushed()
	s.Requeue()
	if pending, _ := s.Len(); pending != 0 {
		t.Errorf("expected empty shard, got %d pending", pending)
	}
}

func TestPushWait_BlocksUntilFlushed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestShard(t, 1, time.Hour, nil)
	if err := s.PushWait(context.Background(), rec(0)); err != nil {
		t.Fatalf("first push: %v", err)
	}
	s.Drain()

	done := make(chan error, 1)
	go func() {
		done <- s.PushWait(context.Background(), rec(1))
	}()

	select {
	case <-done:
		t.Fatal("push into a full shard must wait")
	case <-time.After(50 * time.Millisecond):
	}

	s.MarkFlushed()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pusher was not woken by MarkFlushed")
	}
	if pending, _ := s.Len(); pending != 1 {
		t.Errorf("expected 1 pending record, got %d", pending)
	}
}

func TestPushWait_ContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestShard(t, 1, time.Hour, nil)
	s.Push(rec(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.PushWait(ctx, rec(1))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled pusher did not return")
	}
	if pending, _ := s.Len(); pending != 1 {
		t.Errorf("cancelled push must not add a record, got %d pending", pending)
	}
}

func TestPushWait_NotFull(t *testing.T) {
	s := newTestShard(t, 2, time.Hour, nil)
	if err := s.PushWait(context.Background(), rec(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending, _ := s.Len(); pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}
}

func TestFlushLock(t *testing.T) {
	s := newTestShard(t, 2, time.Hour, nil)
	s.LockFlush()
	if s.TryLockFlush() {
		t.Fatal("TryLockFlush must fail while a flush is in flight")
	}
	s.UnlockFlush()
	if !s.TryLockFlush() {
		t.Fatal("TryLockFlush must succeed when idle")
	}
	s.UnlockFlush()
}

func TestRace_ConcurrentPushAndDrain(t *testing.T) {
	s := newTestShard(t, 50, time.Hour, nil)
	ctx := context.Background()

	const producers = 4
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := s.PushWait(ctx, rec(p*perProducer+i)); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}(p)
	}

	seen := make(map[int]bool)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collect := func() {
		s.LockFlush()
		defer s.UnlockFlush()
		for _, r := range s.Drain() {
			seen[r["seq"].(int)] = true
		}
		s.MarkFlushed()
	}

	for {
		select {
		case <-done:
			collect()
			if len(seen) != producers*perProducer {
				t.Fatalf("expected %d distinct records, got %d", producers*perProducer, len(seen))
			}
			return
		default:
			collect()
		}
	}
}
