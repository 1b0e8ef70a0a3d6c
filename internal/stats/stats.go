// Package stats tracks delivery throughput and reports it periodically.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/szibis/sa-log-shipper/internal/logging"
)

// DefaultReportInterval is how often throughput is reported.
const DefaultReportInterval = 60 * time.Second

// SourceStatus is the last known position of one log source.
type SourceStatus struct {
	Offset   interface{} `json:"offset,omitempty"`
	LastSeen time.Time   `json:"last_seen"`
	Count    uint64      `json:"count"`
}

// StatusProvider hands out source status accumulated since the last call
// and forgets it.
type StatusProvider interface {
	DrainStatus() map[string]SourceStatus
}

// Report is one throughput report.
type Report struct {
	// Speed is records sent per second since the previous report.
	Speed           float64           `json:"speed"`
	ReceiveCount    uint64            `json:"receive_count"`
	SendCount       uint64            `json:"send_count"`
	ParseErrorCount uint64            `json:"parse_error_count"`
	URLSendCount    map[string]uint64 `json:"url_send_count"`
	DistinctSources uint64            `json:"distinct_sources"`
	Elapsed         time.Duration     `json:"-"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker aggregates received, sent and failed record counts.
type Tracker struct {
	now func() time.Time

	mu          sync.Mutex
	received    uint64
	parseErrors uint64
	sent        uint64
	perEndpoint map[string]uint64
	sources     *hyperloglog.Sketch
	status      StatusProvider

	lastSent   uint64
	lastReport time.Time
}

// NewTracker creates a Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:         time.Now,
		perEndpoint: make(map[string]uint64),
		sources:     hyperloglog.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastReport = t.now()
	return t
}

// SetStatusProvider sets where per-source status is taken from on Report.
func (t *Tracker) SetStatusProvider(p StatusProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = p
}

// RecordSent records count records delivered to endpoint.
func (t *Tracker) RecordSent(endpoint string, count int) {
	if count <= 0 {
		return
	}
	t.mu.Lock()
	t.sent += uint64(count)
	t.perEndpoint[endpoint] += uint64(count)
	t.mu.Unlock()

	recordsSentTotal.WithLabelValues(endpoint).Add(float64(count))
}

// RecordReceived records count records handed to the shipper.
func (t *Tracker) RecordReceived(count int) {
	if count <= 0 {
		return
	}
	t.mu.Lock()
	t.received += uint64(count)
	t.mu.Unlock()

	recordsReceivedTotal.Add(float64(count))
}

// RecordParseError records one record dropped because it could not be parsed.
func (t *Tracker) RecordParseError() {
	t.mu.Lock()
	t.parseErrors++
	t.mu.Unlock()

	parseErrorsTotal.Inc()
}

// ObserveSource adds source to the distinct source estimate.
func (t *Tracker) ObserveSource(source string) {
	if source == "" {
		return
	}
	t.mu.Lock()
	t.sources.Insert([]byte(source))
	t.mu.Unlock()
}

// Sent returns the total and per-endpoint sent counts.
func (t *Tracker) Sent() (total uint64, perEndpoint map[string]uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.copyPerEndpoint()
}

func (t *Tracker) copyPerEndpoint() map[string]uint64 {
	out := make(map[string]uint64, len(t.perEndpoint))
	for k, v := range t.perEndpoint {
		out[k] = v
	}
	return out
}

// Report computes the current report, logs it, logs and clears source
// status, and starts a new speed window.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	now := t.now()
	elapsed := now.Sub(t.lastReport)
	r := Report{
		ReceiveCount:    t.received,
		SendCount:       t.sent,
		ParseErrorCount: t.parseErrors,
		URLSendCount:    t.copyPerEndpoint(),
		DistinctSources: t.sources.Estimate(),
		Elapsed:         elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.Speed = float64(t.sent-t.lastSent) / secs
	}
	t.lastSent = t.sent
	t.lastReport = now
	provider := t.status
	t.mu.Unlock()

	sendSpeed.Set(r.Speed)
	distinctSources.Set(float64(r.DistinctSources))

	logging.Info("throughput", logging.F(
		"speed", r.Speed,
		"receive_count", r.ReceiveCount,
		"send_count", r.SendCount,
		"parse_error_count", r.ParseErrorCount,
		"url_send_count", r.URLSendCount,
		"distinct_sources", r.DistinctSources,
	))

	if provider != nil {
		if status := provider.DrainStatus(); len(status) > 0 {
			logging.Info("source status", logging.F(
				"sources", len(status),
				"status", status,
			))
		}
	}
	return r
}

// StartPeriodicReporting reports every interval until ctx is done.
func (t *Tracker) StartPeriodicReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Report()
		}
	}
}
