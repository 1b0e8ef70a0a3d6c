package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return rec.Code, resp
}

func TestLiveHandler(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return fixed }))

	code, resp := serve(t, c.LiveHandler(), "/live")
	if code != http.StatusOK || resp.Status != StatusUp {
		t.Fatalf("expected 200 up, got %d %s", code, resp.Status)
	}
	if resp.Timestamp != "2024-03-01T12:00:00Z" {
		t.Errorf("timestamp = %s", resp.Timestamp)
	}

	c.SetShuttingDown()
	code, resp = serve(t, c.LiveHandler(), "/live")
	if code != http.StatusServiceUnavailable || resp.Status != StatusDown {
		t.Fatalf("expected 503 down while shutting down, got %d %s", code, resp.Status)
	}
	if resp.Components["process"].Message != "shutting down" {
		t.Errorf("unexpected components: %+v", resp.Components)
	}
}

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"http_receiver":  func() error { return nil },
				"beats_receiver": func() error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name: "degraded stays ready",
			checks: map[string]CheckFunc{
				"http_receiver": func() error { return nil },
				"endpoints":     func() error { return Degraded("1 of 3 endpoints cooling down") },
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "down wins over degraded",
			checks: map[string]CheckFunc{
				"buffer":    func() error { return errors.New("closed") },
				"endpoints": func() error { return Degraded("1 of 3 endpoints cooling down") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for name, check := range tt.checks {
				c.RegisterReadiness(name, check)
			}
			code, resp := serve(t, c.ReadyHandler(), "/ready")
			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Fatalf("got %d %s, want %d %s", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			if len(resp.Components) != len(tt.checks) {
				t.Errorf("expected %d components, got %d", len(tt.checks), len(resp.Components))
			}
		})
	}
}

func TestReadyHandler_ComponentMessage(t *testing.T) {
	c := New()
	c.RegisterReadiness("buffer", func() error { return errors.New("closed") })

	_, resp := serve(t, c.ReadyHandler(), "/ready")
	comp := resp.Components["buffer"]
	if comp.Status != StatusDown || comp.Message != "closed" {
		t.Fatalf("unexpected component: %+v", comp)
	}
}

func TestReadyHandler_ShuttingDown(t *testing.T) {
	c := New()
	c.RegisterReadiness("http_receiver", func() error { return nil })
	c.SetShuttingDown()

	if !c.ShuttingDown() {
		t.Fatal("expected ShuttingDown")
	}
	code, _ := serve(t, c.ReadyHandler(), "/ready")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestRegister(t *testing.T) {
	c := New()
	mux := http.NewServeMux()
	c.Register(mux)

	for _, path := range []string{"/live", "/ready"} {
		code, _ := serve(t, mux, path)
		if code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, code)
		}
	}
}

func TestEndpointCheck(t *testing.T) {
	tests := []struct {
		available, total int
		wantErr          bool
		wantDegraded     bool
	}{
		{4, 4, false, false},
		{3, 4, true, true},
		{0, 4, true, false},
		{0, 0, true, false},
	}
	for _, tt := range tests {
		check := EndpointCheck(func() (int, int) { return tt.available, tt.total })
		err := check()
		if (err != nil) != tt.wantErr {
			t.Errorf("%d/%d: err = %v, wantErr %v", tt.available, tt.total, err, tt.wantErr)
			continue
		}
		if err != nil && IsDegraded(err) != tt.wantDegraded {
			t.Errorf("%d/%d: degraded = %v, want %v", tt.available, tt.total, IsDegraded(err), tt.wantDegraded)
		}
	}
}

func TestClosedCheck(t *testing.T) {
	closed := false
	check := ClosedCheck(func() bool { return closed })
	if err := check(); err != nil {
		t.Fatalf("open component reported %v", err)
	}
	closed = true
	if err := check(); err == nil || IsDegraded(err) {
		t.Fatalf("closed component must be down, got %v", err)
	}
}
