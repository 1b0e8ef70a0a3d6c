// Package ingest turns host events into enriched records and hands them to
// the buffer.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/szibis/sa-log-shipper/internal/logging"
	"github.com/szibis/sa-log-shipper/internal/record"
	"github.com/szibis/sa-log-shipper/internal/stats"
)

// Library metadata attached to every record.
const (
	DefaultLibName = "Logstash"
	LibMethod      = "tools"
)

// DefaultExpectedSources sizes the new-source bloom filter.
const DefaultExpectedSources = 100000

// Event is one record as handed over by an input.
type Event struct {
	// Message is the JSON object to ship.
	Message string
	// Fields are the input's metadata, addressed with field references.
	Fields map[string]interface{}
}

// Receiver accepts enriched records. *buffer.Buffer implements it.
type Receiver interface {
	Receive(ctx context.Context, rec record.Record, routingKey string) error
}

// Tracker is notified of received records, parse errors and sources.
type Tracker interface {
	RecordReceived(count int)
	RecordParseError()
	ObserveSource(source string)
}

// Config holds enrichment and routing configuration.
type Config struct {
	// Project is merged into every record when set.
	Project string
	// RoutingFields are concatenated, in order, to build the routing key.
	RoutingFields []string
	// SourceStatus enables per-source offset tracking for beats inputs.
	SourceStatus bool
	// LibName and LibVersion fill $lib and $lib_version.
	LibName    string
	LibVersion string
	// ExpectedSources sizes the new-source detector.
	ExpectedSources uint
}

// Pipeline enriches events and routes them to a Receiver.
type Pipeline struct {
	cfg     Config
	out     Receiver
	tracker Tracker
	now     func() time.Time

	mu     sync.Mutex
	status map[string]stats.SourceStatus
	seen   *bloom.BloomFilter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. tracker may be nil.
func New(cfg Config, out Receiver, tracker Tracker, opts ...Option) *Pipeline {
	if cfg.LibName == "" {
		cfg.LibName = DefaultLibName
	}
	if cfg.ExpectedSources == 0 {
		cfg.ExpectedSources = DefaultExpectedSources
	}
	p := &Pipeline{
		cfg:     cfg,
		out:     out,
		tracker: tracker,
		now:     time.Now,
		status:  make(map[string]stats.SourceStatus),
		seen:    bloom.NewWithEstimates(cfg.ExpectedSources, 0.001),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MultiReceive enriches and buffers events in order. Events whose message is
// not a JSON object are counted as parse errors and skipped. It returns the
// first buffer error, which only happens when ctx ends or the buffer closed.
func (p *Pipeline) MultiReceive(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if p.tracker != nil {
		p.tracker.RecordReceived(len(events))
	}

	for i := range events {
		rec, key, err := p.enrich(&events[i])
		if err != nil {
			if p.tracker != nil {
				p.tracker.RecordParseError()
			}
			logging.Error("could not process record", logging.F(
				"error", err.Error(),
				"message", truncate(events[i].Message, 256),
			))
			continue
		}
		if err := p.out.Receive(ctx, rec, key); err != nil {
			return fmt.Errorf("buffer record: %w", err)
		}
	}
	return nil
}

var (
	errNotObject    = errors.New("message is not a JSON object")
	errTrailingData = errors.New("message has data after the JSON object")
)

// enrich parses the message and attaches lib and project metadata. It
// returns the record and its routing key.
func (p *Pipeline) enrich(e *Event) (record.Record, string, error) {
	rec, err := parseMessage(e.Message)
	if err != nil {
		return nil, "", err
	}

	key, hasKey := p.configuredKey(e.Fields)

	var detail string
	if IsFilebeat(e.Fields) {
		host := LookupString(e.Fields, "[host][name]")
		file := LookupString(e.Fields, "[log][file][path]")
		detail = host + "##" + file
		if !hasKey {
			key = host + file
		}
		if p.cfg.SourceStatus {
			offset, _ := Lookup(e.Fields, "[log][offset]")
			p.collectStatus(detail, offset)
		}
	} else {
		host, hostOK := Lookup(e.Fields, "host")
		path, pathOK := Lookup(e.Fields, "path")
		if hostOK && pathOK && host != nil && path != nil {
			detail = toString(host) + "##" + toString(path)
			if !hasKey {
				key = toString(host) + toString(path)
			}
		}
	}

	if detail != "" {
		p.observe(detail)
	}

	rec["lib"] = map[string]interface{}{
		"$lib":         p.cfg.LibName,
		"$lib_version": p.cfg.LibVersion,
		"$lib_method":  LibMethod,
		"$lib_detail":  detail,
	}
	if p.cfg.Project != "" {
		rec["project"] = p.cfg.Project
	}
	return rec, key, nil
}

// configuredKey concatenates the routing fields. ok is false when no
// routing fields are configured.
func (p *Pipeline) configuredKey(fields map[string]interface{}) (string, bool) {
	if len(p.cfg.RoutingFields) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, ref := range p.cfg.RoutingFields {
		sb.WriteString(LookupString(fields, ref))
	}
	return sb.String(), true
}

// IsFilebeat reports whether the event was produced by filebeat.
func IsFilebeat(fields map[string]interface{}) bool {
	return LookupString(fields, "[agent][type]") == "filebeat" ||
		LookupString(fields, "[@metadata][beat]") == "filebeat"
}

func parseMessage(msg string) (record.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(msg)))
	dec.UseNumber()
	var rec record.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if rec == nil {
		return nil, errNotObject
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errTrailingData
	}
	return rec, nil
}

func (p *Pipeline) collectStatus(detail string, offset interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status[detail]
	st.Offset = offset
	st.LastSeen = p.now()
	st.Count++
	p.status[detail] = st
}

func (p *Pipeline) observe(detail string) {
	p.mu.Lock()
	known := p.seen.TestAndAddString(detail)
	p.mu.Unlock()

	if p.tracker != nil {
		p.tracker.ObserveSource(detail)
	}
	if !known {
		newSourcesTotal.Inc()
		logging.Info("new source detected", logging.F("source", detail))
	}
}

// DrainStatus returns the source status collected since the last call and
// resets it.
func (p *Pipeline) DrainStatus() map[string]stats.SourceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.status) == 0 {
		return nil
	}
	out := p.status
	p.status = make(map[string]stats.SourceStatus)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
