package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed CA-capable certificate valid for 127.0.0.1
// and returns the cert and key paths.
func writeCert(t *testing.T, dir, name string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, name+".crt")
	keyFile := filepath.Join(dir, name+".key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewServerTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "server")
	badCA := filepath.Join(dir, "bad-ca.pem")
	if err := os.WriteFile(badCA, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		cfg        ServerConfig
		wantNil    bool
		wantErr    bool
		clientAuth tls.ClientAuthType
	}{
		{name: "disabled", cfg: ServerConfig{}, wantNil: true},
		{name: "cert only", cfg: ServerConfig{CertFile: certFile, KeyFile: keyFile}, clientAuth: tls.NoClientCert},
		{name: "mtls", cfg: ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: certFile}, clientAuth: tls.RequireAndVerifyClientCert},
		{name: "key missing", cfg: ServerConfig{CertFile: certFile}, wantErr: true},
		{name: "missing files", cfg: ServerConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}, wantErr: true},
		{name: "client CA without cert", cfg: ServerConfig{ClientCAFile: certFile}, wantErr: true},
		{name: "unparseable CA", cfg: ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: badCA}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewServerTLSConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != tt.wantNil {
				t.Fatalf("config = %v, wantNil %v", got, tt.wantNil)
			}
			if got == nil {
				return
			}
			if got.MinVersion != tls.VersionTLS12 {
				t.Errorf("MinVersion = %x", got.MinVersion)
			}
			if len(got.Certificates) != 1 {
				t.Errorf("expected 1 certificate, got %d", len(got.Certificates))
			}
			if got.ClientAuth != tt.clientAuth {
				t.Errorf("ClientAuth = %v, want %v", got.ClientAuth, tt.clientAuth)
			}
		})
	}
}

func TestNewServerTLSConfig_KeyPairError(t *testing.T) {
	_, err := NewServerTLSConfig(ServerConfig{KeyFile: "server.key"})
	if !errors.Is(err, ErrKeyPair) {
		t.Fatalf("expected ErrKeyPair, got %v", err)
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "client")

	t.Run("defaults", func(t *testing.T) {
		got, err := NewClientTLSConfig(ClientConfig{})
		if err != nil {
			t.Fatal(err)
		}
		if got.MinVersion != tls.VersionTLS12 || got.RootCAs != nil || len(got.Certificates) != 0 {
			t.Errorf("unexpected default config: %+v", got)
		}
	})

	t.Run("full", func(t *testing.T) {
		got, err := NewClientTLSConfig(ClientConfig{
			CAFile:             certFile,
			CertFile:           certFile,
			KeyFile:            keyFile,
			ServerName:         "sa.internal",
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got.RootCAs == nil {
			t.Error("expected RootCAs")
		}
		if len(got.Certificates) != 1 {
			t.Errorf("expected client certificate, got %d", len(got.Certificates))
		}
		if got.ServerName != "sa.internal" || !got.InsecureSkipVerify {
			t.Errorf("ServerName=%q InsecureSkipVerify=%v", got.ServerName, got.InsecureSkipVerify)
		}
	})

	t.Run("errors", func(t *testing.T) {
		for _, cfg := range []ClientConfig{
			{CAFile: "/nonexistent/ca.pem"},
			{CertFile: certFile},
			{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"},
		} {
			if _, err := NewClientTLSConfig(cfg); err == nil {
				t.Errorf("expected error for %+v", cfg)
			}
		}
	})
}

func TestListen_Handshake(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "server")

	serverCfg, err := NewServerTLSConfig(ServerConfig{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatal(err)
	}
	l, err := Listen("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	done := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		_, _ = io.ReadFull(conn, buf)
		done <- buf
	}()

	clientCfg, err := NewClientTLSConfig(ClientConfig{CAFile: certFile})
	if err != nil {
		t.Fatal(err)
	}
	conn, err := tls.Dial("tcp", l.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-done:
		if string(got) != "ping" {
			t.Fatalf("server read %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server")
	}
}

func TestListen_Plain(t *testing.T) {
	l, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, ok := l.(*net.TCPListener); !ok {
		t.Fatalf("expected plain TCP listener, got %T", l)
	}
}
