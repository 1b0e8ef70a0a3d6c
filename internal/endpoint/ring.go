// Package endpoint implements the per-shard ring of delivery targets.
//
// Every shard owns its own Ring. Rings are rotated so that shard i starts at
// endpoint i (mod the endpoint count), which spreads load while all endpoints
// are healthy. Availability is tracked per ring: an endpoint that fails for one
// shard is skipped only by that shard until its cooldown elapses.
package endpoint

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed endpoint is skipped.
const DefaultCooldown = 3 * time.Second

// ErrNoEndpoints is returned when a ring is built from an empty list.
var ErrNoEndpoints = errors.New("endpoint: at least one endpoint is required")

// Endpoint is a delivery target and its availability state within one ring.
type Endpoint struct {
	URL string
	// slot is the endpoint's position in the configured list. It keeps
	// duplicate URLs apart in metrics.
	slot      string
	available bool
	failedAt  time.Time
}

// Option configures a Ring.
type Option func(*Ring)

// WithCooldown sets the window a failed endpoint is skipped for.
func WithCooldown(d time.Duration) Option {
	return func(r *Ring) {
		if d >= 0 {
			r.cooldown = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Ring) { r.now = now }
}

// WithLabel sets the shard label used for availability metrics.
func WithLabel(label string) Option {
	return func(r *Ring) { r.label = label }
}

// Ring is an ordered, cyclable list of endpoints. Position 0 is the preferred
// endpoint of the owning shard.
type Ring struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	cooldown  time.Duration
	now       func() time.Time
	label     string
}

// NewRing builds a ring over urls rotated to start at index start.
func NewRing(urls []string, start int, opts ...Option) (*Ring, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}

	r := &Ring{
		endpoints: make([]*Endpoint, 0, len(urls)),
		cooldown:  DefaultCooldown,
		now:       time.Now,
		label:     strconv.Itoa(start),
	}
	for _, opt := range opts {
		opt(r)
	}

	n := len(urls)
	start = ((start % n) + n) % n
	for i := 0; i < n; i++ {
		slot := (start + i) % n
		ep := &Endpoint{URL: urls[slot], slot: strconv.Itoa(slot), available: true}
		r.endpoints = append(r.endpoints, ep)
		r.setAvailable(ep, true)
	}
	return r, nil
}

// Len returns the number of endpoints in the ring.
func (r *Ring) Len() int {
	return len(r.endpoints)
}

// Preferred returns the URL this ring tries first.
func (r *Ring) Preferred() string {
	return r.endpoints[0].URL
}

// urls returns the endpoint URLs in ring order.
func (r *Ring) urls() []string {
	out := make([]string, len(r.endpoints))
	for i, ep := range r.endpoints {
		out[i] = ep.URL
	}
	return out
}

// Select returns the first eligible endpoint scanning one full pass from
// cursor. ok is false when every endpoint is cooling down.
//
// Eligibility is evaluated lazily: an unavailable endpoint whose cooldown has
// elapsed is re-enabled here.
func (r *Ring) Select(cursor int) (idx int, url string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.endpoints)
	now := r.now()
	for i := 0; i < n; i++ {
		j := ((cursor+i)%n + n) % n
		ep := r.endpoints[j]
		if ep.available {
			return j, ep.URL, true
		}
		if now.Sub(ep.failedAt) >= r.cooldown {
			ep.available = true
			r.setAvailable(ep, true)
			endpointRecoveriesTotal.WithLabelValues(ep.URL).Inc()
			return j, ep.URL, true
		}
	}
	return -1, "", false
}

// MarkFailed marks the endpoint at idx unavailable for the cooldown window.
func (r *Ring) MarkFailed(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx < 0 || idx >= len(r.endpoints) {
		return
	}
	ep := r.endpoints[idx]
	ep.available = false
	ep.failedAt = r.now()
	r.setAvailable(ep, false)
	endpointFailuresTotal.WithLabelValues(ep.URL).Inc()
}

// Available reports how many endpoints are eligible right now, without
// changing any state.
func (r *Ring) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for _, ep := range r.endpoints {
		if ep.available || now.Sub(ep.failedAt) >= r.cooldown {
			count++
		}
	}
	return count
}

// Cooldown returns the configured cooldown window.
func (r *Ring) Cooldown() time.Duration {
	return r.cooldown
}

func (r *Ring) setAvailable(ep *Endpoint, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	endpointAvailable.WithLabelValues(r.label, ep.slot, ep.URL).Set(v)
}
