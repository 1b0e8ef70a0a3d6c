package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHTTPMiddleware(t *testing.T) {
	bearer := ServerConfig{BearerToken: "s3cret"}
	basic := ServerConfig{BasicAuthUsername: "beats", BasicAuthPassword: "pw"}

	tests := []struct {
		name     string
		cfg      ServerConfig
		header   string
		wantCode int
	}{
		{"disabled", ServerConfig{}, "", http.StatusOK},
		{"username only is disabled", ServerConfig{BasicAuthUsername: "beats"}, "", http.StatusOK},
		{"bearer valid", bearer, "Bearer s3cret", http.StatusOK},
		{"bearer wrong token", bearer, "Bearer nope", http.StatusUnauthorized},
		{"bearer missing", bearer, "", http.StatusUnauthorized},
		{"bearer wrong scheme", bearer, "s3cret", http.StatusUnauthorized},
		{"basic valid", basic, "Basic " + basicAuthEncoded("beats", "pw"), http.StatusOK},
		{"basic wrong password", basic, "Basic " + basicAuthEncoded("beats", "x"), http.StatusUnauthorized},
		{"basic sent bearer", basic, "Bearer pw", http.StatusUnauthorized},
		{"bearer wins over basic", ServerConfig{BearerToken: "t", BasicAuthUsername: "u", BasicAuthPassword: "p"}, "Basic " + basicAuthEncoded("u", "p"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HTTPMiddleware(tt.cfg, okHandler)
			req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHTTPMiddleware_BasicFromClient(t *testing.T) {
	h := HTTPMiddleware(ServerConfig{BasicAuthUsername: "beats", BasicAuthPassword: "pw"}, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.SetBasicAuth("beats", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestHTTPMiddleware_FailureMetrics(t *testing.T) {
	h := HTTPMiddleware(ServerConfig{BearerToken: "s3cret"}, okHandler)

	before := testutil.ToFloat64(authFailures.WithLabelValues("missing"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if got := testutil.ToFloat64(authFailures.WithLabelValues("missing")) - before; got != 1 {
		t.Errorf("missing failures delta = %v, want 1", got)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestHTTPMiddleware_Concurrent(t *testing.T) {
	srv := httptest.NewServer(HTTPMiddleware(ServerConfig{BearerToken: "s3cret"}, okHandler))
	defer srv.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
				want := http.StatusOK
				if g%2 == 0 {
					req.Header.Set("Authorization", "Bearer s3cret")
				} else {
					req.Header.Set("Authorization", "Bearer wrong")
					want = http.StatusUnauthorized
				}
				resp, err := srv.Client().Do(req)
				if err != nil {
					t.Error(err)
					return
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode != want {
					t.Errorf("status = %d, want %d", resp.StatusCode, want)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

type captureTransport struct {
	req *http.Request
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func TestHTTPTransport(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ClientConfig
		wantAuth   string
		wantHeader string
	}{
		{"bearer", ClientConfig{BearerToken: "tok"}, "Bearer tok", ""},
		{"basic", ClientConfig{BasicAuthUsername: "u", BasicAuthPassword: "p"}, "Basic " + basicAuthEncoded("u", "p"), ""},
		{"bearer over basic", ClientConfig{BearerToken: "tok", BasicAuthUsername: "u"}, "Bearer tok", ""},
		{"headers", ClientConfig{Headers: map[string]string{"X-Project": "logs"}}, "", "logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &captureTransport{}
			rt := HTTPTransport(tt.cfg, base)

			req, _ := http.NewRequest(http.MethodPost, "http://sa1:8106/sa", nil)
			resp, err := rt.RoundTrip(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if got := base.req.Header.Get("Authorization"); got != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", got, tt.wantAuth)
			}
			if got := base.req.Header.Get("X-Project"); got != tt.wantHeader {
				t.Errorf("X-Project = %q, want %q", got, tt.wantHeader)
			}
			if req.Header.Get("Authorization") != "" || req.Header.Get("X-Project") != "" {
				t.Error("original request was modified")
			}
		})
	}
}

func TestHTTPTransport_Passthrough(t *testing.T) {
	base := &captureTransport{}
	if rt := HTTPTransport(ClientConfig{}, base); rt != base {
		t.Errorf("expected base transport back, got %T", rt)
	}
	if rt := HTTPTransport(ClientConfig{}, nil); rt != http.DefaultTransport {
		t.Errorf("expected default transport, got %T", rt)
	}
}
