package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Project   string   `yaml:"project"`

	Buffer    BufferYAMLConfig    `yaml:"buffer"`
	Delivery  DeliveryYAMLConfig  `yaml:"delivery"`
	Receiver  ReceiverYAMLConfig  `yaml:"receiver"`
	Stats     StatsYAMLConfig     `yaml:"stats"`
	Logging   LoggingYAMLConfig   `yaml:"logging"`
	Telemetry TelemetryYAMLConfig `yaml:"telemetry"`
	Memory    MemoryYAMLConfig    `yaml:"memory"`
}

// BufferYAMLConfig holds sharded buffer configuration.
type BufferYAMLConfig struct {
	FlushInterval Duration `yaml:"flush_interval"`
	BatchSize     int      `yaml:"batch_size"`
	Shards        int      `yaml:"shards"`
	RoutingFields []string `yaml:"routing_fields"`
	SourceStatus  *bool    `yaml:"source_status"` // default: true
}

// DeliveryYAMLConfig holds failover, retry and collector client configuration.
type DeliveryYAMLConfig struct {
	Cooldown         Duration             `yaml:"cooldown"`
	BackoffInitial   Duration             `yaml:"backoff_initial"`
	BackoffMax       Duration             `yaml:"backoff_max"`
	CompressionLevel int                  `yaml:"compression_level"`
	HTTPClient       HTTPClientYAMLConfig `yaml:"http_client"`
}

// HTTPClientYAMLConfig holds collector HTTP client configuration.
type HTTPClientYAMLConfig struct {
	Timeout              Duration `yaml:"timeout"`
	MaxIdleConns         int      `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost  int      `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost      int      `yaml:"max_conns_per_host"`
	IdleConnTimeout      Duration `yaml:"idle_conn_timeout"`
	DisableKeepAlives    bool     `yaml:"disable_keep_alives"`
	ForceHTTP2           bool     `yaml:"force_http2"`
	HTTP2ReadIdleTimeout Duration `yaml:"http2_read_idle_timeout"`
	HTTP2PingTimeout     Duration `yaml:"http2_ping_timeout"`

	TLS  ClientTLSYAMLConfig  `yaml:"tls"`
	Auth ClientAuthYAMLConfig `yaml:"auth"`
}

// ClientTLSYAMLConfig holds collector TLS settings.
type ClientTLSYAMLConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ClientAuthYAMLConfig holds credentials sent to collectors.
type ClientAuthYAMLConfig struct {
	BearerToken       string            `yaml:"bearer_token"`
	BasicAuthUsername string            `yaml:"basic_auth_username"`
	BasicAuthPassword string            `yaml:"basic_auth_password"`
	Headers           map[string]string `yaml:"headers"`
}

// ServerTLSYAMLConfig holds listener TLS settings. TLS is on when cert_file
// is set.
type ServerTLSYAMLConfig struct {
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	ClientCAFile string `yaml:"client_ca_file"`
}

// ServerAuthYAMLConfig holds credentials the HTTP receiver requires.
type ServerAuthYAMLConfig struct {
	BearerToken       string `yaml:"bearer_token"`
	BasicAuthUsername string `yaml:"basic_auth_username"`
	BasicAuthPassword string `yaml:"basic_auth_password"`
}

// ReceiverYAMLConfig holds receiver configuration.
type ReceiverYAMLConfig struct {
	HTTP  HTTPReceiverYAMLConfig  `yaml:"http"`
	Beats BeatsReceiverYAMLConfig `yaml:"beats"`
}

// HTTPReceiverYAMLConfig holds HTTP receiver configuration. A nil address
// keeps the default; an empty string disables the receiver.
type HTTPReceiverYAMLConfig struct {
	Address            *string  `yaml:"address"`
	Path               string   `yaml:"path"`
	MaxRequestBodySize ByteSize `yaml:"max_request_body_size"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`

	TLS  ServerTLSYAMLConfig  `yaml:"tls"`
	Auth ServerAuthYAMLConfig `yaml:"auth"`
}

// BeatsReceiverYAMLConfig holds beats receiver configuration.
type BeatsReceiverYAMLConfig struct {
	Address   *string  `yaml:"address"`
	Keepalive Duration `yaml:"keepalive"`
	Timeout   Duration `yaml:"timeout"`

	TLS ServerTLSYAMLConfig `yaml:"tls"`
}

// StatsYAMLConfig holds stats and health endpoint configuration.
type StatsYAMLConfig struct {
	Address  string   `yaml:"address"`
	Interval Duration `yaml:"interval"`
}

// LoggingYAMLConfig holds logging configuration.
type LoggingYAMLConfig struct {
	Level string `yaml:"level"`
}

// TelemetryYAMLConfig holds OTLP self-monitoring telemetry configuration.
type TelemetryYAMLConfig struct {
	Endpoint     string   `yaml:"endpoint"`      // OTLP endpoint (empty = disabled)
	Protocol     string   `yaml:"protocol"`      // "grpc" or "http" (default: "grpc")
	Insecure     *bool    `yaml:"insecure"`      // default: true
	PushInterval Duration `yaml:"push_interval"` // default: 30s
}

// MemoryYAMLConfig holds memory limit configuration.
type MemoryYAMLConfig struct {
	// LimitRatio is the ratio of container memory to use for GOMEMLIMIT (0.0-1.0)
	LimitRatio *float64 `yaml:"limit_ratio"`
}

// Duration is a wrapper for time.Duration that supports YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize is a wrapper for int64 that supports human-readable YAML values.
// Accepted formats: raw integer (bytes), or suffixed: Ki, Mi, Gi.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for ByteSize.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return FormatByteSize(int64(b)), nil
}

var byteSuffixes = []struct {
	name string
	mult int64
}{
	{"Gi", 1 << 30},
	{"Mi", 1 << 20},
	{"Ki", 1 << 10},
}

// ParseByteSize parses a human-readable byte size string. Plain integers are
// bytes; Ki, Mi and Gi are binary multiples and accept fractions ("1.5Mi").
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, sf := range byteSuffixes {
		if strings.HasSuffix(s, sf.name) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.name))
			var f float64
			if _, err := fmt.Sscanf(numStr, "%g", &f); err != nil || f < 0 {
				return 0, fmt.Errorf("invalid byte size: %q", s)
			}
			return int64(f * float64(sf.mult)), nil
		}
	}
	var n int64
	var trail string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &trail); err == nil && trail != "" {
		return 0, fmt.Errorf("invalid byte size: %q (use Ki, Mi, or Gi suffixes)", s)
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return n, nil
}

// FormatByteSize formats bytes as a human-readable string with binary suffix.
func FormatByteSize(b int64) string {
	for _, sf := range byteSuffixes {
		if b >= sf.mult && b%sf.mult == 0 {
			return fmt.Sprintf("%d%s", b/sf.mult, sf.name)
		}
	}
	return fmt.Sprintf("%d", b)
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML configuration from bytes. Unknown keys are errors.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for unspecified fields.
func (y *YAMLConfig) ApplyDefaults() {
	def := DefaultConfig()

	if y.Buffer.FlushInterval == 0 {
		y.Buffer.FlushInterval = Duration(def.FlushInterval)
	}
	if y.Buffer.BatchSize == 0 {
		y.Buffer.BatchSize = def.FlushBatchSize
	}
	if y.Buffer.SourceStatus == nil {
		v := def.SourceStatus
		y.Buffer.SourceStatus = &v
	}

	if y.Delivery.Cooldown == 0 {
		y.Delivery.Cooldown = Duration(def.Cooldown)
	}
	if y.Delivery.BackoffInitial == 0 {
		y.Delivery.BackoffInitial = Duration(def.BackoffInitial)
	}
	if y.Delivery.BackoffMax == 0 {
		y.Delivery.BackoffMax = Duration(def.BackoffMax)
	}
	hc := &y.Delivery.HTTPClient
	if hc.Timeout == 0 {
		hc.Timeout = Duration(def.ExporterTimeout)
	}
	if hc.MaxIdleConns == 0 {
		hc.MaxIdleConns = def.ExporterMaxIdleConns
	}
	if hc.MaxIdleConnsPerHost == 0 {
		hc.MaxIdleConnsPerHost = def.ExporterMaxIdleConnsPerHost
	}
	if hc.IdleConnTimeout == 0 {
		hc.IdleConnTimeout = Duration(def.ExporterIdleConnTimeout)
	}

	httpRecv := &y.Receiver.HTTP
	if httpRecv.Address == nil {
		addr := def.HTTPListenAddr
		httpRecv.Address = &addr
	}
	if httpRecv.Path == "" {
		httpRecv.Path = def.HTTPReceiverPath
	}
	if httpRecv.MaxRequestBodySize == 0 {
		httpRecv.MaxRequestBodySize = ByteSize(def.ReceiverMaxRequestBodySize)
	}
	if httpRecv.ReadTimeout == 0 {
		httpRecv.ReadTimeout = Duration(def.ReceiverReadTimeout)
	}
	if httpRecv.WriteTimeout == 0 {
		httpRecv.WriteTimeout = Duration(def.ReceiverWriteTimeout)
	}
	if httpRecv.IdleTimeout == 0 {
		httpRecv.IdleTimeout = Duration(def.ReceiverIdleTimeout)
	}

	beats := &y.Receiver.Beats
	if beats.Address == nil {
		addr := def.BeatsListenAddr
		beats.Address = &addr
	}
	if beats.Keepalive == 0 {
		beats.Keepalive = Duration(def.BeatsKeepalive)
	}
	if beats.Timeout == 0 {
		beats.Timeout = Duration(def.BeatsTimeout)
	}

	if y.Stats.Address == "" {
		y.Stats.Address = def.StatsAddr
	}
	if y.Stats.Interval == 0 {
		y.Stats.Interval = Duration(def.StatsInterval)
	}
	if y.Logging.Level == "" {
		y.Logging.Level = def.LogLevel
	}

	if y.Telemetry.Protocol == "" {
		y.Telemetry.Protocol = def.TelemetryProtocol
	}
	if y.Telemetry.Insecure == nil {
		v := def.TelemetryInsecure
		y.Telemetry.Insecure = &v
	}
	if y.Telemetry.PushInterval == 0 {
		y.Telemetry.PushInterval = Duration(def.TelemetryPushInterval)
	}

	if y.Memory.LimitRatio == nil {
		v := def.MemoryLimitRatio
		y.Memory.LimitRatio = &v
	}
}

// ToConfig converts YAMLConfig to the flat Config struct. ApplyDefaults must
// have been called.
func (y *YAMLConfig) ToConfig() *Config {
	cfg := DefaultConfig()

	cfg.Endpoints = y.Endpoints
	cfg.Project = y.Project

	cfg.FlushInterval = time.Duration(y.Buffer.FlushInterval)
	cfg.FlushBatchSize = y.Buffer.BatchSize
	cfg.ShardCount = y.Buffer.Shards
	cfg.RoutingFields = y.Buffer.RoutingFields
	cfg.SourceStatus = *y.Buffer.SourceStatus

	cfg.Cooldown = time.Duration(y.Delivery.Cooldown)
	cfg.BackoffInitial = time.Duration(y.Delivery.BackoffInitial)
	cfg.BackoffMax = time.Duration(y.Delivery.BackoffMax)
	cfg.CompressionLevel = y.Delivery.CompressionLevel

	hc := y.Delivery.HTTPClient
	cfg.ExporterTimeout = time.Duration(hc.Timeout)
	cfg.ExporterMaxIdleConns = hc.MaxIdleConns
	cfg.ExporterMaxIdleConnsPerHost = hc.MaxIdleConnsPerHost
	cfg.ExporterMaxConnsPerHost = hc.MaxConnsPerHost
	cfg.ExporterIdleConnTimeout = time.Duration(hc.IdleConnTimeout)
	cfg.ExporterDisableKeepAlives = hc.DisableKeepAlives
	cfg.ExporterForceHTTP2 = hc.ForceHTTP2
	cfg.ExporterHTTP2ReadIdleTimeout = time.Duration(hc.HTTP2ReadIdleTimeout)
	cfg.ExporterHTTP2PingTimeout = time.Duration(hc.HTTP2PingTimeout)
	cfg.ExporterTLSInsecureSkipVerify = hc.TLS.InsecureSkipVerify
	cfg.ExporterTLSCAFile = hc.TLS.CAFile
	cfg.ExporterTLSCertFile = hc.TLS.CertFile
	cfg.ExporterTLSKeyFile = hc.TLS.KeyFile
	cfg.ExporterTLSServerName = hc.TLS.ServerName
	cfg.ExporterBearerToken = hc.Auth.BearerToken
	cfg.ExporterBasicAuthUsername = hc.Auth.BasicAuthUsername
	cfg.ExporterBasicAuthPassword = hc.Auth.BasicAuthPassword
	cfg.ExporterHeaders = hc.Auth.Headers

	httpRecv := y.Receiver.HTTP
	cfg.HTTPListenAddr = *httpRecv.Address
	cfg.HTTPReceiverPath = httpRecv.Path
	cfg.ReceiverMaxRequestBodySize = int64(httpRecv.MaxRequestBodySize)
	cfg.ReceiverReadTimeout = time.Duration(httpRecv.ReadTimeout)
	cfg.ReceiverWriteTimeout = time.Duration(httpRecv.WriteTimeout)
	cfg.ReceiverIdleTimeout = time.Duration(httpRecv.IdleTimeout)
	cfg.HTTPTLSCertFile = httpRecv.TLS.CertFile
	cfg.HTTPTLSKeyFile = httpRecv.TLS.KeyFile
	cfg.HTTPTLSClientCAFile = httpRecv.TLS.ClientCAFile
	cfg.HTTPBearerToken = httpRecv.Auth.BearerToken
	cfg.HTTPBasicAuthUsername = httpRecv.Auth.BasicAuthUsername
	cfg.HTTPBasicAuthPassword = httpRecv.Auth.BasicAuthPassword

	cfg.BeatsListenAddr = *y.Receiver.Beats.Address
	cfg.BeatsKeepalive = time.Duration(y.Receiver.Beats.Keepalive)
	cfg.BeatsTimeout = time.Duration(y.Receiver.Beats.Timeout)
	cfg.BeatsTLSCertFile = y.Receiver.Beats.TLS.CertFile
	cfg.BeatsTLSKeyFile = y.Receiver.Beats.TLS.KeyFile
	cfg.BeatsTLSClientCAFile = y.Receiver.Beats.TLS.ClientCAFile

	cfg.StatsAddr = y.Stats.Address
	cfg.StatsInterval = time.Duration(y.Stats.Interval)
	cfg.LogLevel = y.Logging.Level

	cfg.TelemetryEndpoint = y.Telemetry.Endpoint
	cfg.TelemetryProtocol = y.Telemetry.Protocol
	cfg.TelemetryInsecure = *y.Telemetry.Insecure
	cfg.TelemetryPushInterval = time.Duration(y.Telemetry.PushInterval)

	cfg.MemoryLimitRatio = *y.Memory.LimitRatio

	return cfg
}
