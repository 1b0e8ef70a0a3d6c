package receiver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/szibis/sa-log-shipper/internal/auth"
)

func TestHTTPReceiver_Auth(t *testing.T) {
	sink := &mockSink{}
	r := NewHTTP(HTTPConfig{Auth: auth.ServerConfig{BearerToken: "s3cret"}}, sink)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, DefaultHTTPPath, strings.NewReader(`{"message":"hi"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
	if got := len(sink.Events()); got != 1 {
		t.Fatalf("expected only the authenticated event, got %d", got)
	}
}

func TestHTTPReceiver_ServeTLS(t *testing.T) {
	// Borrow httptest's certificate and a client that trusts it.
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	sink := &mockSink{}
	r := NewHTTP(HTTPConfig{TLS: &tls.Config{Certificates: ts.TLS.Certificates, MinVersion: tls.VersionTLS12}}, sink)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Serve(l) }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
		if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("serve: %v", err)
		}
	}()

	url := "https://" + l.Addr().String() + DefaultHTTPPath
	resp, err := ts.Client().Post(url, "application/json", strings.NewReader(`{"message":"over tls"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ev := sink.Events(); len(ev) != 1 || ev[0].Message != "over tls" {
		t.Fatalf("unexpected events: %+v", ev)
	}
}
