// Package auth authenticates requests on the HTTP receiver and attaches
// credentials to collector requests.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// ServerConfig holds the credentials the HTTP receiver accepts. A bearer
// token takes precedence over basic auth; with neither set every request
// passes.
type ServerConfig struct {
	BearerToken       string
	BasicAuthUsername string
	BasicAuthPassword string
}

// Enabled reports whether any credential is configured.
func (c ServerConfig) Enabled() bool {
	return c.BearerToken != "" || (c.BasicAuthUsername != "" && c.BasicAuthPassword != "")
}

// ClientConfig holds credentials sent to collectors.
type ClientConfig struct {
	BearerToken       string
	BasicAuthUsername string
	BasicAuthPassword string
	// Headers are set on every request after the credentials.
	Headers map[string]string
}

// Enabled reports whether the client adds anything to requests.
func (c ClientConfig) Enabled() bool {
	return c.BearerToken != "" || c.BasicAuthUsername != "" || len(c.Headers) > 0
}

// HTTPMiddleware rejects requests whose Authorization header does not match
// cfg with 401. next is returned unchanged when cfg has no credentials.
func HTTPMiddleware(cfg ServerConfig, next http.Handler) http.Handler {
	if !cfg.Enabled() {
		return next
	}

	var expected string
	if cfg.BearerToken != "" {
		expected = "Bearer " + cfg.BearerToken
	} else {
		expected = "Basic " + basicAuthEncoded(cfg.BasicAuthUsername, cfg.BasicAuthPassword)
	}
	scheme, _, _ := strings.Cut(expected, " ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		switch {
		case got == "":
			authFailures.WithLabelValues("missing").Inc()
			w.Header().Set("WWW-Authenticate", scheme)
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		case !strings.HasPrefix(got, scheme+" "):
			authFailures.WithLabelValues("scheme").Inc()
			w.Header().Set("WWW-Authenticate", scheme)
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		case subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1:
			authFailures.WithLabelValues("credentials").Inc()
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPTransport wraps base so every request carries cfg's credentials and
// headers. base is returned unchanged when cfg adds nothing.
func HTTPTransport(cfg ClientConfig, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !cfg.Enabled() {
		return base
	}
	return &authTransport{base: base, cfg: cfg}
}

type authTransport struct {
	base http.RoundTripper
	cfg  ClientConfig
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())

	if t.cfg.BearerToken != "" {
		out.Header.Set("Authorization", "Bearer "+t.cfg.BearerToken)
	} else if t.cfg.BasicAuthUsername != "" {
		out.SetBasicAuth(t.cfg.BasicAuthUsername, t.cfg.BasicAuthPassword)
	}
	for k, v := range t.cfg.Headers {
		out.Header.Set(k, v)
	}
	return t.base.RoundTrip(out)
}

func basicAuthEncoded(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
