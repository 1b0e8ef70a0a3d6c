// Package health serves the shipper's liveness and readiness probes.
package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by health endpoints.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
}

// CheckFunc returns nil if the component is healthy, an error created by
// Degraded if it works with reduced capacity, or any other error if it is
// down.
type CheckFunc func() error

type degradedError struct{ msg string }

func (e *degradedError) Error() string { return e.msg }

// Degraded returns an error that marks a component degraded without failing
// readiness.
func Degraded(format string, args ...interface{}) error {
	return &degradedError{msg: fmt.Sprintf(format, args...)}
}

// IsDegraded reports whether err was created by Degraded.
func IsDegraded(err error) bool {
	var d *degradedError
	return errors.As(err, &d)
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides the time source used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// Checker provides liveness and readiness probes.
// Components register themselves and report their status.
type Checker struct {
	mu              sync.RWMutex
	readinessChecks map[string]CheckFunc
	shuttingDown    atomic.Bool
	now             func() time.Time
}

// New creates a new health Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		readinessChecks: make(map[string]CheckFunc),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterReadiness registers a named readiness check.
// The check is called on each /ready request.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readinessChecks[name] = check
}

// SetShuttingDown marks the instance as shutting down.
// After this, both /live and /ready return 503.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// ShuttingDown reports whether SetShuttingDown was called.
func (c *Checker) ShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Register mounts /live and /ready on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/live", c.LiveHandler())
	mux.HandleFunc("/ready", c.ReadyHandler())
}

func (c *Checker) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func (c *Checker) shutdownResponse(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, Response{
		Status:    StatusDown,
		Timestamp: c.timestamp(),
		Components: map[string]ComponentCheck{
			"process": {Status: StatusDown, Message: "shutting down"},
		},
	})
}

// LiveHandler returns an http.HandlerFunc for the /live endpoint.
// Liveness checks that the process is running and not in shutdown.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			c.shutdownResponse(w)
			return
		}
		writeJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: c.timestamp(),
		})
	}
}

// ReadyHandler returns an http.HandlerFunc for the /ready endpoint.
// Readiness runs all registered checks; any down component makes the
// response 503, degraded components keep it 200.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			c.shutdownResponse(w)
			return
		}

		overall, components := c.Evaluate()
		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, Response{
			Status:     overall,
			Components: components,
			Timestamp:  c.timestamp(),
		})
	}
}

// Evaluate runs every readiness check and returns the overall status.
func (c *Checker) Evaluate() (Status, map[string]ComponentCheck) {
	c.mu.RLock()
	names := make([]string, 0, len(c.readinessChecks))
	checks := make(map[string]CheckFunc, len(c.readinessChecks))
	for k, v := range c.readinessChecks {
		names = append(names, k)
		checks[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	overall := StatusUp
	components := make(map[string]ComponentCheck, len(checks))
	for _, name := range names {
		err := checks[name]()
		switch {
		case err == nil:
			components[name] = ComponentCheck{Status: StatusUp}
		case IsDegraded(err):
			components[name] = ComponentCheck{Status: StatusDegraded, Message: err.Error()}
			if overall == StatusUp {
				overall = StatusDegraded
			}
		default:
			components[name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
			overall = StatusDown
		}
	}
	return overall, components
}

// EndpointCheck reports collectors down when no shard has an eligible
// endpoint, and degraded while some endpoints are cooling down.
func EndpointCheck(availability func() (available, total int)) CheckFunc {
	return func() error {
		available, total := availability()
		switch {
		case total == 0 || available == 0:
			return fmt.Errorf("all %d endpoints cooling down", total)
		case available < total:
			return Degraded("%d of %d endpoints cooling down", total-available, total)
		}
		return nil
	}
}

// ClosedCheck reports a component down once closed returns true.
func ClosedCheck(closed func() bool) CheckFunc {
	return func() error {
		if closed() {
			return errors.New("closed")
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
