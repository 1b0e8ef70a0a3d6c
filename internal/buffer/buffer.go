// Package buffer implements the sharded in-memory record buffer and its flush
// scheduler.
package buffer

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/szibis/sa-log-shipper/internal/endpoint"
	"github.com/szibis/sa-log-shipper/internal/logging"
	"github.com/szibis/sa-log-shipper/internal/record"
	"github.com/szibis/sa-log-shipper/internal/shard"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by New.
const (
	DefaultCapacity      = 100
	DefaultFlushInterval = 2 * time.Second
)

// closePollInterval is how often Close rechecks for in-flight receives.
const closePollInterval = 10 * time.Millisecond

var (
	// ErrNoEndpoints is returned by New when no endpoint is configured.
	ErrNoEndpoints = endpoint.ErrNoEndpoints
	// ErrClosed is returned by Receive after Close was called.
	ErrClosed = errors.New("buffer: closed")
)

// Flusher delivers the contents of a shard.
type Flusher interface {
	FlushShard(ctx context.Context, s *shard.Shard, force bool) error
}

// Config holds buffer configuration.
type Config struct {
	// ShardCount is the number of shards. Zero means one per endpoint.
	ShardCount int
	// Capacity is the per-shard record limit and flush batch size.
	Capacity int
	// FlushInterval is the maximum time records wait before a flush.
	FlushInterval time.Duration
	// Endpoints are the collector URLs. At least one is required.
	Endpoints []string
	// Cooldown is how long a failed endpoint is skipped. Zero uses the
	// endpoint package default.
	Cooldown time.Duration
}

// Option configures a Buffer.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source of shards and rings, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Buffer routes records to shards and triggers their flushes.
type Buffer struct {
	shards        []*shard.Shard
	flushInterval time.Duration
	flusher       Flusher

	closed   atomic.Bool
	inflight atomic.Int64
	doneChan chan struct{}
}

// New creates a Buffer with one rotated endpoint ring per shard.
func New(cfg Config, flusher Flusher, opts ...Option) (*Buffer, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.ShardCount <= 0 {
		cfg.ShardCount = len(cfg.Endpoints)
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	b := &Buffer{
		shards:        make([]*shard.Shard, cfg.ShardCount),
		flushInterval: cfg.FlushInterval,
		flusher:       flusher,
		doneChan:      make(chan struct{}),
	}

	for i := range b.shards {
		label := strconv.Itoa(i)
		ringOpts := []endpoint.Option{endpoint.WithLabel(label)}
		shardOpts := []shard.Option{}
		if cfg.Cooldown > 0 {
			ringOpts = append(ringOpts, endpoint.WithCooldown(cfg.Cooldown))
		}
		if o.now != nil {
			ringOpts = append(ringOpts, endpoint.WithClock(o.now))
			shardOpts = append(shardOpts, shard.WithClock(o.now))
		}

		ring, err := endpoint.NewRing(cfg.Endpoints, i, ringOpts...)
		if err != nil {
			return nil, err
		}
		b.shards[i] = shard.New(i, cfg.Capacity, cfg.FlushInterval, ring, shardOpts...)
		b.updateGauge(b.shards[i])
	}

	logging.Info("buffer created", logging.F(
		"shards", cfg.ShardCount,
		"capacity", cfg.Capacity,
		"flush_interval", cfg.FlushInterval.String(),
		"endpoints", len(cfg.Endpoints),
	))
	return b, nil
}

// Shards returns the buffer's shards in index order.
func (b *Buffer) Shards() []*shard.Shard {
	return b.shards
}

// Index returns the shard index for routingKey. An empty key and a single
// shard both map to shard 0.
func (b *Buffer) Index(routingKey string) int {
	n := len(b.shards)
	if n == 1 || routingKey == "" {
		return 0
	}
	return int(xxhash.Sum64String(routingKey) % uint64(n))
}

// Receive adds rec to the shard selected by routingKey, waiting while that
// shard is full, then flushes the shard if it needs it.
//
// Once Receive returns nil the record is owned by the buffer. A flush that
// is interrupted by ctx leaves the record buffered for a later flush.
func (b *Buffer) Receive(ctx context.Context, rec record.Record, routingKey string) error {
	b.inflight.Add(1)
	defer b.inflight.Add(-1)

	if b.closed.Load() {
		return ErrClosed
	}

	s := b.shards[b.Index(routingKey)]
	label := strconv.Itoa(s.ID())
	if s.Full() {
		backpressureWaitsTotal.WithLabelValues(label).Inc()
	}
	if err := s.PushWait(ctx, rec); err != nil {
		return err
	}
	receivedTotal.WithLabelValues(label).Inc()
	b.updateGauge(s)

	if s.NeedsFlush(false) {
		flushesTotal.WithLabelValues("write").Inc()
		if err := b.flusher.FlushShard(ctx, s, false); err != nil {
			logging.Debug("flush on write interrupted", logging.F(
				"shard", s.ID(),
				"error", err.Error(),
			))
		}
		b.updateGauge(s)
	}
	return nil
}

// FlushAll flushes every shard that needs it, concurrently. With force, any
// shard holding records is flushed.
func (b *Buffer) FlushAll(ctx context.Context, force bool) error {
	trigger := "timer"
	if force {
		trigger = "force"
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range b.shards {
		if !s.NeedsFlush(force) {
			continue
		}
		flushesTotal.WithLabelValues(trigger).Inc()
		g.Go(func() error {
			defer b.updateGauge(s)
			return b.flusher.FlushShard(gctx, s, force)
		})
	}
	return g.Wait()
}

// Start runs the flush scheduler until ctx is done. Call Wait to join it.
func (b *Buffer) Start(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	defer close(b.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.FlushAll(ctx, false); err != nil && ctx.Err() == nil {
				logging.Error("scheduled flush failed", logging.F("error", err.Error()))
			}
		}
	}
}

// Wait waits for the flush scheduler to stop.
func (b *Buffer) Wait() {
	<-b.doneChan
}

// Close rejects further records and flushes everything buffered, including
// records of receives that were waiting for space. Delivery still retries
// until it succeeds, so Close returns early only when ctx is done.
func (b *Buffer) Close(ctx context.Context) error {
	b.closed.Store(true)

	for {
		if err := b.FlushAll(ctx, true); err != nil {
			return err
		}
		if b.inflight.Load() == 0 && b.Len() == 0 {
			return nil
		}

		t := time.NewTimer(closePollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Closed reports whether Close was called.
func (b *Buffer) Closed() bool {
	return b.closed.Load()
}

// Len returns the number of buffered records, pending or in flight.
func (b *Buffer) Len() int {
	total := 0
	for _, s := range b.shards {
		pending, outgoing := s.Len()
		total += pending + outgoing
	}
	return total
}

// EndpointAvailability sums eligible and total endpoints across every
// shard's ring.
func (b *Buffer) EndpointAvailability() (available, total int) {
	for _, s := range b.shards {
		available += s.Ring().Available()
		total += s.Ring().Len()
	}
	return available, total
}

func (b *Buffer) updateGauge(s *shard.Shard) {
	label := strconv.Itoa(s.ID())
	pending, outgoing := s.Len()
	bufferedRecords.WithLabelValues(label).Set(float64(pending + outgoing))
	last := s.LastFlush()
	lastFlushTimestamp.WithLabelValues(label).Set(float64(last.Unix()) + float64(last.Nanosecond())/1e9)
}
