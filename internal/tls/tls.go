// Package tls builds crypto/tls configurations for the receivers and for
// collector connections.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrKeyPair is returned when only one of a certificate and key is given.
var ErrKeyPair = errors.New("tls: cert file and key file must be set together")

// ServerConfig holds TLS settings for a listener. TLS is off while CertFile
// is empty.
type ServerConfig struct {
	CertFile string
	KeyFile  string
	// ClientCAFile, when set, requires clients to present a certificate
	// signed by one of its CAs.
	ClientCAFile string
}

// Enabled reports whether the listener should serve TLS.
func (c ServerConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// ClientConfig holds TLS settings for collector connections.
type ClientConfig struct {
	// CAFile replaces the system roots for verifying collectors.
	CAFile string
	// CertFile and KeyFile present a client certificate (mTLS).
	CertFile string
	KeyFile  string
	// ServerName overrides the name checked against the collector certificate.
	ServerName         string
	InsecureSkipVerify bool
}

// NewServerTLSConfig loads the listener certificate. It returns nil, nil when
// TLS is not enabled.
func NewServerTLSConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		if cfg.ClientCAFile != "" {
			return nil, errors.New("tls: client CA file set without a server certificate")
		}
		return nil, nil
	}
	cert, err := loadKeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.ClientCAFile != "" {
		pool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConfig, nil
}

// NewClientTLSConfig builds the configuration used for https:// collectors.
// Unlike the server side it always returns a config, so the TLS 1.2 floor
// applies even with no files configured.
func NewClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := loadKeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Listen opens a TCP listener on addr, wrapped in TLS when cfg is non-nil.
func Listen(addr string, cfg *tls.Config) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return l, nil
	}
	return tls.NewListener(l, cfg), nil
}

func loadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return tls.Certificate{}, ErrKeyPair
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: load key pair %s: %w", certFile, err)
	}
	return cert, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tls: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls: no certificates found in %s", path)
	}
	return pool, nil
}
