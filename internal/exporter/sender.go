package exporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/szibis/sa-log-shipper/internal/auth"
)

// maxErrorBody caps how much of a failed response body is kept for logs.
const maxErrorBody = 512

// Sender performs a single delivery attempt of an encoded payload.
type Sender interface {
	Send(ctx context.Context, url string, body []byte) error
}

// HTTPClientConfig holds HTTP client settings for collector requests.
type HTTPClientConfig struct {
	// Timeout bounds a single attempt, including reading the response.
	Timeout time.Duration
	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. If zero, 100 is used.
	MaxIdleConns int
	// MaxIdleConnsPerHost controls the maximum idle connections per host.
	// If zero, 100 is used.
	MaxIdleConnsPerHost int
	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int
	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
	// DisableKeepAlives disables HTTP keep-alives.
	DisableKeepAlives bool
	// ForceAttemptHTTP2 enables HTTP/2 for plain http:// collectors.
	ForceAttemptHTTP2 bool
	// HTTP2ReadIdleTimeout is the timeout after which a health check ping is
	// sent on an idle HTTP/2 connection.
	HTTP2ReadIdleTimeout time.Duration
	// HTTP2PingTimeout closes the connection if a ping is not answered.
	HTTP2PingTimeout time.Duration
	// InsecureSkipVerify disables TLS certificate verification. It is
	// ignored when TLSConfig is set.
	InsecureSkipVerify bool
	// TLSConfig is used for https:// collectors when non-nil.
	TLSConfig *tls.Config
	// Auth adds credentials and headers to every request.
	Auth auth.ClientConfig
	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultHTTPClientConfig returns the client settings used when none are given.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           "sa-log-shipper",
	}
}

// HTTPSender posts payloads to collector endpoints.
type HTTPSender struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSender creates an HTTPSender with a tuned transport.
func NewHTTPSender(cfg HTTPClientConfig) *HTTPSender {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     cfg.ForceAttemptHTTP2,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.TLSConfig != nil {
		transport.TLSClientConfig = cfg.TLSConfig.Clone()
	} else {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
		}
	}

	if transport.MaxIdleConns == 0 {
		transport.MaxIdleConns = 100
	}
	if transport.MaxIdleConnsPerHost == 0 {
		transport.MaxIdleConnsPerHost = 100
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = 90 * time.Second
	}

	http2Transport, err := http2.ConfigureTransports(transport)
	if err == nil && http2Transport != nil {
		if cfg.HTTP2ReadIdleTimeout > 0 {
			http2Transport.ReadIdleTimeout = cfg.HTTP2ReadIdleTimeout
		}
		if cfg.HTTP2PingTimeout > 0 {
			http2Transport.PingTimeout = cfg.HTTP2PingTimeout
		}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "sa-log-shipper"
	}

	return &HTTPSender{
		client: &http.Client{
			Transport: auth.HTTPTransport(cfg.Auth, transport),
			Timeout:   cfg.Timeout,
		},
		userAgent: userAgent,
	}
}

// Send posts body to url. Only HTTP 200 counts as success.
func (s *HTTPSender) Send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &SendError{Endpoint: url, Type: ErrorTypeClientError, Err: err}
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	sendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return &SendError{Endpoint: url, Type: classifyError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return &SendError{
		Endpoint:   url,
		StatusCode: resp.StatusCode,
		Type:       classifyHTTPStatusCode(resp.StatusCode),
		Body:       string(msg),
	}
}

// Close releases idle connections.
func (s *HTTPSender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
