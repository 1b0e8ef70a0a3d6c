package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/szibis/sa-log-shipper/internal/auth"
	"github.com/szibis/sa-log-shipper/internal/buffer"
	"github.com/szibis/sa-log-shipper/internal/compression"
	"github.com/szibis/sa-log-shipper/internal/endpoint"
	"github.com/szibis/sa-log-shipper/internal/exporter"
	"github.com/szibis/sa-log-shipper/internal/ingest"
	"github.com/szibis/sa-log-shipper/internal/receiver"
	"github.com/szibis/sa-log-shipper/internal/stats"
	"github.com/szibis/sa-log-shipper/internal/telemetry"
	tlspkg "github.com/szibis/sa-log-shipper/internal/tls"
)

// version is set at build time via ldflags
var version = "0.1.2"

// Version returns the build version.
func Version() string { return version }

// Config holds the application configuration.
type Config struct {
	// Delivery targets
	Endpoints []string
	Project   string

	// Buffer settings
	FlushInterval  time.Duration
	FlushBatchSize int
	ShardCount     int
	RoutingFields  []string
	SourceStatus   bool

	// Delivery settings
	Cooldown         time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	CompressionLevel int

	// Collector HTTP client settings
	ExporterTimeout               time.Duration
	ExporterMaxIdleConns          int
	ExporterMaxIdleConnsPerHost   int
	ExporterMaxConnsPerHost       int
	ExporterIdleConnTimeout       time.Duration
	ExporterDisableKeepAlives     bool
	ExporterForceHTTP2            bool
	ExporterHTTP2ReadIdleTimeout  time.Duration
	ExporterHTTP2PingTimeout      time.Duration
	ExporterTLSInsecureSkipVerify bool
	ExporterTLSCAFile             string
	ExporterTLSCertFile           string
	ExporterTLSKeyFile            string
	ExporterTLSServerName         string
	ExporterBearerToken           string
	ExporterBasicAuthUsername     string
	ExporterBasicAuthPassword     string
	ExporterHeaders               map[string]string

	// HTTP receiver settings (empty address disables it)
	HTTPListenAddr             string
	HTTPReceiverPath           string
	ReceiverMaxRequestBodySize int64
	ReceiverReadTimeout        time.Duration
	ReceiverWriteTimeout       time.Duration
	ReceiverIdleTimeout        time.Duration
	HTTPTLSCertFile            string
	HTTPTLSKeyFile             string
	HTTPTLSClientCAFile        string
	HTTPBearerToken            string
	HTTPBasicAuthUsername      string
	HTTPBasicAuthPassword      string

	// Beats receiver settings (empty address disables it)
	BeatsListenAddr      string
	BeatsKeepalive       time.Duration
	BeatsTimeout         time.Duration
	BeatsTLSCertFile     string
	BeatsTLSKeyFile      string
	BeatsTLSClientCAFile string

	// Stats, health and logging
	StatsAddr     string
	StatsInterval time.Duration
	LogLevel      string

	// OTLP self-monitoring (empty endpoint disables it)
	TelemetryEndpoint     string
	TelemetryProtocol     string
	TelemetryInsecure     bool
	TelemetryPushInterval time.Duration

	// Memory
	MemoryLimitRatio float64

	ConfigFile string

	// Flags
	ShowHelp    bool
	ShowVersion bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	client := exporter.DefaultHTTPClientConfig()
	return &Config{
		FlushInterval:  buffer.DefaultFlushInterval,
		FlushBatchSize: buffer.DefaultCapacity,
		SourceStatus:   true,

		Cooldown:         endpoint.DefaultCooldown,
		BackoffInitial:   exporter.DefaultBackoffInitial,
		BackoffMax:       exporter.DefaultBackoffMax,
		CompressionLevel: int(compression.LevelDefault),

		ExporterTimeout:              client.Timeout,
		ExporterMaxIdleConns:         client.MaxIdleConns,
		ExporterMaxIdleConnsPerHost:  client.MaxIdleConnsPerHost,
		ExporterIdleConnTimeout:      client.IdleConnTimeout,
		ExporterHTTP2ReadIdleTimeout: client.HTTP2ReadIdleTimeout,
		ExporterHTTP2PingTimeout:     client.HTTP2PingTimeout,

		HTTPListenAddr:             ":8080",
		HTTPReceiverPath:           receiver.DefaultHTTPPath,
		ReceiverMaxRequestBodySize: receiver.DefaultMaxRequestBodySize,
		ReceiverReadTimeout:        time.Minute,
		ReceiverWriteTimeout:       30 * time.Second,
		ReceiverIdleTimeout:        time.Minute,

		BeatsListenAddr: ":5044",
		BeatsKeepalive:  receiver.DefaultBeatsKeepalive,
		BeatsTimeout:    receiver.DefaultBeatsTimeout,

		StatsAddr:     ":9090",
		StatsInterval: stats.DefaultReportInterval,
		LogLevel:      "info",

		TelemetryProtocol:     "grpc",
		TelemetryInsecure:     true,
		TelemetryPushInterval: 30 * time.Second,

		MemoryLimitRatio: 0.9,
	}
}

// ParseFlags parses os.Args and returns the configuration. It exits the
// process on a parse or config file error.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds the configuration from defaults, the optional -config YAML
// file, and command line args. Flags set on the command line override the
// file.
func Parse(args []string) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	yamlCfg, err := LoadYAML(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", cfg.ConfigFile, err)
	}
	fileCfg := yamlCfg.ToConfig()
	fileCfg.ConfigFile = cfg.ConfigFile
	applyFlagOverrides(fs, fileCfg, cfg)
	return fileCfg, nil
}

func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("sa-log-shipper", pflag.ContinueOnError)
	fs.Usage = PrintUsage
	fs.SortFlags = false

	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to YAML configuration file")

	fs.StringSliceVar(&cfg.Endpoints, "endpoint", nil, "Collector URL (repeatable or comma separated)")
	fs.StringVar(&cfg.Project, "project", cfg.Project, "Project merged into every record")

	fs.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "Maximum time records wait before a flush")
	fs.IntVar(&cfg.FlushBatchSize, "flush-batch-size", cfg.FlushBatchSize, "Per-shard capacity and records per request")
	fs.IntVar(&cfg.ShardCount, "shards", cfg.ShardCount, "Number of buffer shards (0 = one per endpoint)")
	fs.StringSliceVar(&cfg.RoutingFields, "routing-field", nil, "Event field used to build the routing key (repeatable)")
	fs.BoolVar(&cfg.SourceStatus, "source-status", cfg.SourceStatus, "Track filebeat source offsets and report them")

	fs.DurationVar(&cfg.Cooldown, "endpoint-cooldown", cfg.Cooldown, "How long a failed endpoint is skipped")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First wait after every endpoint failed")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum wait between delivery passes")
	fs.IntVar(&cfg.CompressionLevel, "compression-level", cfg.CompressionLevel, "Gzip level for payloads (0 = default, 1-9)")

	fs.DurationVar(&cfg.ExporterTimeout, "exporter-timeout", cfg.ExporterTimeout, "Per-request timeout")
	fs.IntVar(&cfg.ExporterMaxIdleConns, "exporter-max-idle-conns", cfg.ExporterMaxIdleConns, "Maximum idle connections")
	fs.IntVar(&cfg.ExporterMaxIdleConnsPerHost, "exporter-max-idle-conns-per-host", cfg.ExporterMaxIdleConnsPerHost, "Maximum idle connections per collector")
	fs.IntVar(&cfg.ExporterMaxConnsPerHost, "exporter-max-conns-per-host", cfg.ExporterMaxConnsPerHost, "Maximum connections per collector (0 = no limit)")
	fs.DurationVar(&cfg.ExporterIdleConnTimeout, "exporter-idle-conn-timeout", cfg.ExporterIdleConnTimeout, "Idle connection timeout")
	fs.BoolVar(&cfg.ExporterDisableKeepAlives, "exporter-disable-keep-alives", cfg.ExporterDisableKeepAlives, "Disable HTTP keep-alives")
	fs.BoolVar(&cfg.ExporterForceHTTP2, "exporter-force-http2", cfg.ExporterForceHTTP2, "Attempt HTTP/2 to collectors")
	fs.DurationVar(&cfg.ExporterHTTP2ReadIdleTimeout, "exporter-http2-read-idle-timeout", cfg.ExporterHTTP2ReadIdleTimeout, "HTTP/2 health check interval")
	fs.DurationVar(&cfg.ExporterHTTP2PingTimeout, "exporter-http2-ping-timeout", cfg.ExporterHTTP2PingTimeout, "HTTP/2 ping timeout")
	fs.BoolVar(&cfg.ExporterTLSInsecureSkipVerify, "exporter-tls-insecure-skip-verify", cfg.ExporterTLSInsecureSkipVerify, "Skip collector certificate verification")
	fs.StringVar(&cfg.ExporterTLSCAFile, "exporter-tls-ca-file", cfg.ExporterTLSCAFile, "CA bundle for verifying collectors")
	fs.StringVar(&cfg.ExporterTLSCertFile, "exporter-tls-cert-file", cfg.ExporterTLSCertFile, "Client certificate for collector mTLS")
	fs.StringVar(&cfg.ExporterTLSKeyFile, "exporter-tls-key-file", cfg.ExporterTLSKeyFile, "Client key for collector mTLS")
	fs.StringVar(&cfg.ExporterTLSServerName, "exporter-tls-server-name", cfg.ExporterTLSServerName, "Override the collector certificate name")
	fs.StringVar(&cfg.ExporterBearerToken, "exporter-bearer-token", cfg.ExporterBearerToken, "Bearer token sent to collectors")
	fs.StringVar(&cfg.ExporterBasicAuthUsername, "exporter-basic-auth-username", cfg.ExporterBasicAuthUsername, "Basic auth username sent to collectors")
	fs.StringVar(&cfg.ExporterBasicAuthPassword, "exporter-basic-auth-password", cfg.ExporterBasicAuthPassword, "Basic auth password sent to collectors")
	fs.StringToStringVar(&cfg.ExporterHeaders, "exporter-header", nil, "Extra header sent to collectors, key=value (repeatable)")

	fs.StringVar(&cfg.HTTPListenAddr, "http-listen", cfg.HTTPListenAddr, "HTTP receiver listen address (empty disables)")
	fs.StringVar(&cfg.HTTPReceiverPath, "http-receiver-path", cfg.HTTPReceiverPath, "HTTP receiver path")
	fs.Int64Var(&cfg.ReceiverMaxRequestBodySize, "receiver-max-body-size", cfg.ReceiverMaxRequestBodySize, "Maximum request body size in bytes")
	fs.DurationVar(&cfg.ReceiverReadTimeout, "receiver-read-timeout", cfg.ReceiverReadTimeout, "HTTP receiver read timeout")
	fs.DurationVar(&cfg.ReceiverWriteTimeout, "receiver-write-timeout", cfg.ReceiverWriteTimeout, "HTTP receiver write timeout")
	fs.DurationVar(&cfg.ReceiverIdleTimeout, "receiver-idle-timeout", cfg.ReceiverIdleTimeout, "HTTP receiver idle timeout")
	fs.StringVar(&cfg.HTTPTLSCertFile, "http-tls-cert-file", cfg.HTTPTLSCertFile, "HTTP receiver certificate (enables HTTPS)")
	fs.StringVar(&cfg.HTTPTLSKeyFile, "http-tls-key-file", cfg.HTTPTLSKeyFile, "HTTP receiver private key")
	fs.StringVar(&cfg.HTTPTLSClientCAFile, "http-tls-client-ca-file", cfg.HTTPTLSClientCAFile, "CA bundle required of HTTP clients (mTLS)")
	fs.StringVar(&cfg.HTTPBearerToken, "http-bearer-token", cfg.HTTPBearerToken, "Bearer token required by the HTTP receiver")
	fs.StringVar(&cfg.HTTPBasicAuthUsername, "http-basic-auth-username", cfg.HTTPBasicAuthUsername, "Basic auth username required by the HTTP receiver")
	fs.StringVar(&cfg.HTTPBasicAuthPassword, "http-basic-auth-password", cfg.HTTPBasicAuthPassword, "Basic auth password required by the HTTP receiver")

	fs.StringVar(&cfg.BeatsListenAddr, "beats-listen", cfg.BeatsListenAddr, "Beats (lumberjack v2) listen address (empty disables)")
	fs.DurationVar(&cfg.BeatsKeepalive, "beats-keepalive", cfg.BeatsKeepalive, "Beats keepalive signal interval")
	fs.DurationVar(&cfg.BeatsTimeout, "beats-timeout", cfg.BeatsTimeout, "Beats connection read timeout")
	fs.StringVar(&cfg.BeatsTLSCertFile, "beats-tls-cert-file", cfg.BeatsTLSCertFile, "Beats receiver certificate (enables TLS)")
	fs.StringVar(&cfg.BeatsTLSKeyFile, "beats-tls-key-file", cfg.BeatsTLSKeyFile, "Beats receiver private key")
	fs.StringVar(&cfg.BeatsTLSClientCAFile, "beats-tls-client-ca-file", cfg.BeatsTLSClientCAFile, "CA bundle required of beats clients (mTLS)")

	fs.StringVar(&cfg.StatsAddr, "stats-addr", cfg.StatsAddr, "Metrics and health listen address")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Throughput report interval")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.TelemetryEndpoint, "telemetry-endpoint", cfg.TelemetryEndpoint, "OTLP endpoint for self-monitoring (empty disables)")
	fs.StringVar(&cfg.TelemetryProtocol, "telemetry-protocol", cfg.TelemetryProtocol, "OTLP protocol: grpc or http")
	fs.BoolVar(&cfg.TelemetryInsecure, "telemetry-insecure", cfg.TelemetryInsecure, "Use an insecure OTLP connection")
	fs.DurationVar(&cfg.TelemetryPushInterval, "telemetry-push-interval", cfg.TelemetryPushInterval, "OTLP metric push interval")

	fs.Float64Var(&cfg.MemoryLimitRatio, "memory-limit-ratio", cfg.MemoryLimitRatio, "Ratio of container memory used for GOMEMLIMIT (0 disables)")

	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help message")
	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version")

	return fs
}

// applyFlagOverrides copies explicitly set flags from src onto dst.
func applyFlagOverrides(fs *pflag.FlagSet, dst, src *Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "endpoint":
			dst.Endpoints = src.Endpoints
		case "project":
			dst.Project = src.Project
		case "flush-interval":
			dst.FlushInterval = src.FlushInterval
		case "flush-batch-size":
			dst.FlushBatchSize = src.FlushBatchSize
		case "shards":
			dst.ShardCount = src.ShardCount
		case "routing-field":
			dst.RoutingFields = src.RoutingFields
		case "source-status":
			dst.SourceStatus = src.SourceStatus
		case "endpoint-cooldown":
			dst.Cooldown = src.Cooldown
		case "backoff-initial":
			dst.BackoffInitial = src.BackoffInitial
		case "backoff-max":
			dst.BackoffMax = src.BackoffMax
		case "compression-level":
			dst.CompressionLevel = src.CompressionLevel
		case "exporter-timeout":
			dst.ExporterTimeout = src.ExporterTimeout
		case "exporter-max-idle-conns":
			dst.ExporterMaxIdleConns = src.ExporterMaxIdleConns
		case "exporter-max-idle-conns-per-host":
			dst.ExporterMaxIdleConnsPerHost = src.ExporterMaxIdleConnsPerHost
		case "exporter-max-conns-per-host":
			dst.ExporterMaxConnsPerHost = src.ExporterMaxConnsPerHost
		case "exporter-idle-conn-timeout":
			dst.ExporterIdleConnTimeout = src.ExporterIdleConnTimeout
		case "exporter-disable-keep-alives":
			dst.ExporterDisableKeepAlives = src.ExporterDisableKeepAlives
		case "exporter-force-http2":
			dst.ExporterForceHTTP2 = src.ExporterForceHTTP2
		case "exporter-http2-read-idle-timeout":
			dst.ExporterHTTP2ReadIdleTimeout = src.ExporterHTTP2ReadIdleTimeout
		case "exporter-http2-ping-timeout":
			dst.ExporterHTTP2PingTimeout = src.ExporterHTTP2PingTimeout
		case "exporter-tls-insecure-skip-verify":
			dst.ExporterTLSInsecureSkipVerify = src.ExporterTLSInsecureSkipVerify
		case "exporter-tls-ca-file":
			dst.ExporterTLSCAFile = src.ExporterTLSCAFile
		case "exporter-tls-cert-file":
			dst.ExporterTLSCertFile = src.ExporterTLSCertFile
		case "exporter-tls-key-file":
			dst.ExporterTLSKeyFile = src.ExporterTLSKeyFile
		case "exporter-tls-server-name":
			dst.ExporterTLSServerName = src.ExporterTLSServerName
		case "exporter-bearer-token":
			dst.ExporterBearerToken = src.ExporterBearerToken
		case "exporter-basic-auth-username":
			dst.ExporterBasicAuthUsername = src.ExporterBasicAuthUsername
		case "exporter-basic-auth-password":
			dst.ExporterBasicAuthPassword = src.ExporterBasicAuthPassword
		case "exporter-header":
			dst.ExporterHeaders = src.ExporterHeaders
		case "http-listen":
			dst.HTTPListenAddr = src.HTTPListenAddr
		case "http-receiver-path":
			dst.HTTPReceiverPath = src.HTTPReceiverPath
		case "receiver-max-body-size":
			dst.ReceiverMaxRequestBodySize = src.ReceiverMaxRequestBodySize
		case "receiver-read-timeout":
			dst.ReceiverReadTimeout = src.ReceiverReadTimeout
		case "receiver-write-timeout":
			dst.ReceiverWriteTimeout = src.ReceiverWriteTimeout
		case "receiver-idle-timeout":
			dst.ReceiverIdleTimeout = src.ReceiverIdleTimeout
		case "http-tls-cert-file":
			dst.HTTPTLSCertFile = src.HTTPTLSCertFile
		case "http-tls-key-file":
			dst.HTTPTLSKeyFile = src.HTTPTLSKeyFile
		case "http-tls-client-ca-file":
			dst.HTTPTLSClientCAFile = src.HTTPTLSClientCAFile
		case "http-bearer-token":
			dst.HTTPBearerToken = src.HTTPBearerToken
		case "http-basic-auth-username":
			dst.HTTPBasicAuthUsername = src.HTTPBasicAuthUsername
		case "http-basic-auth-password":
			dst.HTTPBasicAuthPassword = src.HTTPBasicAuthPassword
		case "beats-listen":
			dst.BeatsListenAddr = src.BeatsListenAddr
		case "beats-keepalive":
			dst.BeatsKeepalive = src.BeatsKeepalive
		case "beats-timeout":
			dst.BeatsTimeout = src.BeatsTimeout
		case "beats-tls-cert-file":
			dst.BeatsTLSCertFile = src.BeatsTLSCertFile
		case "beats-tls-key-file":
			dst.BeatsTLSKeyFile = src.BeatsTLSKeyFile
		case "beats-tls-client-ca-file":
			dst.BeatsTLSClientCAFile = src.BeatsTLSClientCAFile
		case "stats-addr":
			dst.StatsAddr = src.StatsAddr
		case "stats-interval":
			dst.StatsInterval = src.StatsInterval
		case "log-level":
			dst.LogLevel = src.LogLevel
		case "telemetry-endpoint":
			dst.TelemetryEndpoint = src.TelemetryEndpoint
		case "telemetry-protocol":
			dst.TelemetryProtocol = src.TelemetryProtocol
		case "telemetry-insecure":
			dst.TelemetryInsecure = src.TelemetryInsecure
		case "telemetry-push-interval":
			dst.TelemetryPushInterval = src.TelemetryPushInterval
		case "memory-limit-ratio":
			dst.MemoryLimitRatio = src.MemoryLimitRatio
		case "help":
			dst.ShowHelp = src.ShowHelp
		case "version":
			dst.ShowVersion = src.ShowVersion
		}
	})
}

// BufferConfig returns the sharded buffer configuration.
func (c *Config) BufferConfig() buffer.Config {
	return buffer.Config{
		ShardCount:    c.ShardCount,
		Capacity:      c.FlushBatchSize,
		FlushInterval: c.FlushInterval,
		Endpoints:     c.Endpoints,
		Cooldown:      c.Cooldown,
	}
}

// ExporterConfig returns the delivery pipeline configuration.
func (c *Config) ExporterConfig() exporter.Config {
	return exporter.Config{
		CompressionLevel: compression.Level(c.CompressionLevel),
		BackoffInitial:   c.BackoffInitial,
		BackoffMax:       c.BackoffMax,
	}
}

// HTTPClientConfig returns the collector HTTP client configuration. It fails
// when a configured certificate or CA file cannot be loaded.
func (c *Config) HTTPClientConfig() (exporter.HTTPClientConfig, error) {
	tlsConfig, err := tlspkg.NewClientTLSConfig(c.ExporterTLSConfig())
	if err != nil {
		return exporter.HTTPClientConfig{}, fmt.Errorf("exporter: %w", err)
	}
	return exporter.HTTPClientConfig{
		Timeout:              c.ExporterTimeout,
		MaxIdleConns:         c.ExporterMaxIdleConns,
		MaxIdleConnsPerHost:  c.ExporterMaxIdleConnsPerHost,
		MaxConnsPerHost:      c.ExporterMaxConnsPerHost,
		IdleConnTimeout:      c.ExporterIdleConnTimeout,
		DisableKeepAlives:    c.ExporterDisableKeepAlives,
		ForceAttemptHTTP2:    c.ExporterForceHTTP2,
		HTTP2ReadIdleTimeout: c.ExporterHTTP2ReadIdleTimeout,
		HTTP2PingTimeout:     c.ExporterHTTP2PingTimeout,
		InsecureSkipVerify:   c.ExporterTLSInsecureSkipVerify,
		TLSConfig:            tlsConfig,
		Auth: auth.ClientConfig{
			BearerToken:       c.ExporterBearerToken,
			BasicAuthUsername: c.ExporterBasicAuthUsername,
			BasicAuthPassword: c.ExporterBasicAuthPassword,
			Headers:           c.ExporterHeaders,
		},
		UserAgent: "sa-log-shipper/" + version,
	}, nil
}

// ExporterTLSConfig returns the collector TLS settings.
func (c *Config) ExporterTLSConfig() tlspkg.ClientConfig {
	return tlspkg.ClientConfig{
		CAFile:             c.ExporterTLSCAFile,
		CertFile:           c.ExporterTLSCertFile,
		KeyFile:            c.ExporterTLSKeyFile,
		ServerName:         c.ExporterTLSServerName,
		InsecureSkipVerify: c.ExporterTLSInsecureSkipVerify,
	}
}

// IngestConfig returns the enrichment pipeline configuration.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Project:       c.Project,
		RoutingFields: c.RoutingFields,
		SourceStatus:  c.SourceStatus,
		LibName:       ingest.DefaultLibName,
		LibVersion:    version,
	}
}

// HTTPReceiverConfig returns the HTTP receiver configuration.
func (c *Config) HTTPReceiverConfig() (receiver.HTTPConfig, error) {
	tlsConfig, err := tlspkg.NewServerTLSConfig(tlspkg.ServerConfig{
		CertFile:     c.HTTPTLSCertFile,
		KeyFile:      c.HTTPTLSKeyFile,
		ClientCAFile: c.HTTPTLSClientCAFile,
	})
	if err != nil {
		return receiver.HTTPConfig{}, fmt.Errorf("http receiver: %w", err)
	}
	return receiver.HTTPConfig{
		Addr:               c.HTTPListenAddr,
		Path:               c.HTTPReceiverPath,
		MaxRequestBodySize: c.ReceiverMaxRequestBodySize,
		ReadTimeout:        c.ReceiverReadTimeout,
		ReadHeaderTimeout:  10 * time.Second,
		WriteTimeout:       c.ReceiverWriteTimeout,
		IdleTimeout:        c.ReceiverIdleTimeout,
		TLS:                tlsConfig,
		Auth: auth.ServerConfig{
			BearerToken:       c.HTTPBearerToken,
			BasicAuthUsername: c.HTTPBasicAuthUsername,
			BasicAuthPassword: c.HTTPBasicAuthPassword,
		},
	}, nil
}

// BeatsReceiverConfig returns the beats receiver configuration.
func (c *Config) BeatsReceiverConfig() (receiver.BeatsConfig, error) {
	tlsConfig, err := tlspkg.NewServerTLSConfig(tlspkg.ServerConfig{
		CertFile:     c.BeatsTLSCertFile,
		KeyFile:      c.BeatsTLSKeyFile,
		ClientCAFile: c.BeatsTLSClientCAFile,
	})
	if err != nil {
		return receiver.BeatsConfig{}, fmt.Errorf("beats receiver: %w", err)
	}
	return receiver.BeatsConfig{
		Addr:      c.BeatsListenAddr,
		Keepalive: c.BeatsKeepalive,
		Timeout:   c.BeatsTimeout,
		TLS:       tlsConfig,
	}, nil
}

// TelemetryConfig returns the OTLP self-monitoring configuration.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Endpoint:     c.TelemetryEndpoint,
		Protocol:     c.TelemetryProtocol,
		Insecure:     c.TelemetryInsecure,
		PushInterval: c.TelemetryPushInterval,
		RetryEnabled: true,
	}
}

// PrintUsage prints the usage information.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `sa-log-shipper - sharded buffered log shipper

USAGE:
    sa-log-shipper [OPTIONS]

DESCRIPTION:
    Receives log events over HTTP and the beats protocol, buffers them in
    shards, and delivers gzip batches to one or more collector endpoints
    with failover. Delivery retries until a collector accepts the batch.

OPTIONS:
%s
EXAMPLES:
    # Ship to two collectors
    sa-log-shipper --endpoint http://sa1:8106/sa?project=prod \
        --endpoint http://sa2:8106/sa?project=prod

    # Route by host so one host's lines stay ordered
    sa-log-shipper --endpoint http://sa1:8106/sa --routing-field '[host][name]'

    # Use a config file, overriding the log level
    sa-log-shipper --config /etc/sa-log-shipper.yaml --log-level debug
`, newFlagSet(DefaultConfig()).FlagUsages())
}

// PrintVersion prints the version information.
func PrintVersion() {
	fmt.Printf("sa-log-shipper version %s\n", version)
}
