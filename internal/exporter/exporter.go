// Package exporter flushes shards and delivers their batches to collector
// endpoints with failover and retry-until-success.
package exporter

import (
	"context"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/szibis/sa-log-shipper/internal/compression"
	"github.com/szibis/sa-log-shipper/internal/endpoint"
	"github.com/szibis/sa-log-shipper/internal/logging"
	"github.com/szibis/sa-log-shipper/internal/shard"
)

// Default all-endpoints-down backoff.
const (
	DefaultBackoffInitial = 5 * time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// Tracker receives per-endpoint delivery counts.
type Tracker interface {
	RecordSent(endpoint string, count int)
}

// Config holds exporter configuration.
type Config struct {
	// CompressionLevel is the gzip level for payloads.
	CompressionLevel compression.Level
	// BackoffInitial is the first wait after a pass found every endpoint down.
	BackoffInitial time.Duration
	// BackoffMax caps the wait between passes.
	BackoffMax time.Duration
}

// Exporter implements the flush routine for shards.
type Exporter struct {
	sender  Sender
	tracker Tracker
	level   compression.Level

	backoffInitial time.Duration
	backoffMax     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithSleep overrides how the exporter waits between all-down passes.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Exporter) { e.sleep = sleep }
}

// New creates an Exporter. tracker may be nil.
func New(cfg Config, sender Sender, tracker Tracker, opts ...Option) *Exporter {
	e := &Exporter{
		sender:         sender,
		tracker:        tracker,
		level:          cfg.CompressionLevel,
		backoffInitial: cfg.BackoffInitial,
		backoffMax:     cfg.BackoffMax,
		sleep:          sleepContext,
	}
	if e.backoffInitial <= 0 {
		e.backoffInitial = DefaultBackoffInitial
	}
	if e.backoffMax < e.backoffInitial {
		e.backoffMax = max(DefaultBackoffMax, e.backoffInitial)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FlushShard drains s and delivers the batch, repeating while the shard
// still needs a flush. A non-forced call returns immediately if another
// flush of s is in flight; a forced call waits for it.
//
// The only error returned is ctx's. In that case the undelivered batch is
// requeued at the front of the shard.
func (e *Exporter) FlushShard(ctx context.Context, s *shard.Shard, force bool) error {
	if force {
		s.LockFlush()
		defer s.UnlockFlush()
		return e.flushLocked(ctx, s, true)
	}

	// A push that filled the shard while the lock was held skipped its own
	// flush, so check again after every unlock.
	for s.NeedsFlush(false) {
		if !s.TryLockFlush() {
			return nil
		}
		err := e.flushLocked(ctx, s, false)
		s.UnlockFlush()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) flushLocked(ctx context.Context, s *shard.Shard, force bool) error {
	for s.NeedsFlush(force) {
		batch := s.Drain()
		if len(batch) == 0 {
			return nil
		}

		body, err := EncodePayload(batch, e.level)
		if err != nil {
			encodeErrorsTotal.Inc()
			logging.Error("dropping batch that cannot be serialized", logging.F(
				"shard", s.ID(),
				"records", len(batch),
				"error", err.Error(),
			))
			s.MarkFlushed()
			continue
		}

		url, err := e.Deliver(ctx, body, s.Ring())
		if err != nil {
			s.Requeue()
			return err
		}

		batchesSentTotal.Inc()
		batchSize.Observe(float64(len(batch)))
		payloadBytesTotal.Add(float64(len(body)))
		if e.tracker != nil {
			e.tracker.RecordSent(url, len(batch))
		}
		logging.Debug("batch delivered", logging.F(
			"shard", s.ID(),
			"endpoint", url,
			"records", len(batch),
			"bytes", len(body),
		))
		s.MarkFlushed()
	}
	return nil
}

// Deliver sends body to the first endpoint of ring that accepts it and
// returns that endpoint's URL. Each failure puts the endpoint into cooldown
// and moves on to the next one. When a full pass finds no eligible endpoint,
// Deliver backs off and starts over. It only gives up when ctx is done.
func (e *Exporter) Deliver(ctx context.Context, body []byte, ring *endpoint.Ring) (string, error) {
	b := backoff.NewWithoutJitter(e.backoffMax, e.backoffInitial)
	cursor := 0

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		idx, url, ok := ring.Select(cursor)
		if !ok {
			wait := b.Duration()
			allDownTotal.Inc()
			logging.Warn("all endpoints unavailable, backing off", logging.F(
				"endpoints", ring.Len(),
				"backoff", wait.String(),
				"error", ErrAllEndpointsDown.Error(),
			))
			if err := e.sleep(ctx, wait); err != nil {
				return "", err
			}
			cursor = 0
			continue
		}

		err := e.sender.Send(ctx, url, body)
		if err == nil {
			sendAttemptsTotal.WithLabelValues("success").Inc()
			return url, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		errType := errorType(err)
		sendAttemptsTotal.WithLabelValues("failure").Inc()
		sendErrorsTotal.WithLabelValues(string(errType)).Inc()
		logging.Warn("send failed, trying next endpoint", logging.F(
			"endpoint", url,
			"error_type", string(errType),
			"retryable", retryable(err),
			"error", err.Error(),
			"cooldown", ring.Cooldown().String(),
		))

		ring.MarkFailed(idx)
		cursor = idx + 1
	}
}

// retryable reports whether err may clear up on the same endpoint. Errors
// that are not a *SendError count as retryable.
func retryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
