package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseYAML_Full(t *testing.T) {
	data := []byte(`
endpoints:
  - http://sa1:8106/sa?project=prod
  - https://sa2:8106/sa?project=prod
project: prod
buffer:
  flush_interval: 1s
  batch_size: 500
  shards: 6
  routing_fields: ["[host][name]", "[log][file][path]"]
  source_status: false
delivery:
  cooldown: 5s
  backoff_initial: 1s
  backoff_max: 10s
  compression_level: 6
  http_client:
    timeout: 15s
    max_conns_per_host: 8
    force_http2: true
receiver:
  http:
    address: ":9000"
    path: /ingest
    max_request_body_size: 4Mi
  beats:
    address: ""
stats:
  address: ":9191"
  interval: 30s
logging:
  level: debug
telemetry:
  endpoint: otel:4317
  insecure: false
memory:
  limit_ratio: 0.75
`)
	y, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	cfg := y.ToConfig()

	if len(cfg.Endpoints) != 2 || cfg.Project != "prod" {
		t.Errorf("endpoints/project = %v %q", cfg.Endpoints, cfg.Project)
	}
	if cfg.FlushInterval != time.Second || cfg.FlushBatchSize != 500 || cfg.ShardCount != 6 {
		t.Errorf("buffer = %v %d %d", cfg.FlushInterval, cfg.FlushBatchSize, cfg.ShardCount)
	}
	if len(cfg.RoutingFields) != 2 || cfg.SourceStatus {
		t.Errorf("routing = %v status=%v", cfg.RoutingFields, cfg.SourceStatus)
	}
	if cfg.Cooldown != 5*time.Second || cfg.BackoffInitial != time.Second || cfg.BackoffMax != 10*time.Second {
		t.Errorf("delivery = %v %v %v", cfg.Cooldown, cfg.BackoffInitial, cfg.BackoffMax)
	}
	if cfg.CompressionLevel != 6 {
		t.Errorf("CompressionLevel = %d", cfg.CompressionLevel)
	}
	if cfg.ExporterTimeout != 15*time.Second || cfg.ExporterMaxConnsPerHost != 8 || !cfg.ExporterForceHTTP2 {
		t.Errorf("http client = %v %d %v", cfg.ExporterTimeout, cfg.ExporterMaxConnsPerHost, cfg.ExporterForceHTTP2)
	}
	if cfg.ExporterMaxIdleConns != 100 {
		t.Errorf("unset max_idle_conns should default to 100, got %d", cfg.ExporterMaxIdleConns)
	}
	if cfg.HTTPListenAddr != ":9000" || cfg.HTTPReceiverPath != "/ingest" {
		t.Errorf("http receiver = %q %q", cfg.HTTPListenAddr, cfg.HTTPReceiverPath)
	}
	if cfg.ReceiverMaxRequestBodySize != 4<<20 {
		t.Errorf("ReceiverMaxRequestBodySize = %d", cfg.ReceiverMaxRequestBodySize)
	}
	if cfg.BeatsListenAddr != "" {
		t.Errorf("explicit empty beats address must disable it, got %q", cfg.BeatsListenAddr)
	}
	if cfg.StatsAddr != ":9191" || cfg.StatsInterval != 30*time.Second {
		t.Errorf("stats = %q %v", cfg.StatsAddr, cfg.StatsInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.TelemetryEndpoint != "otel:4317" || cfg.TelemetryInsecure || cfg.TelemetryProtocol != "grpc" {
		t.Errorf("telemetry = %q %v %q", cfg.TelemetryEndpoint, cfg.TelemetryInsecure, cfg.TelemetryProtocol)
	}
	if cfg.MemoryLimitRatio != 0.75 {
		t.Errorf("MemoryLimitRatio = %v", cfg.MemoryLimitRatio)
	}
}

func TestParseYAML_Security(t *testing.T) {
	y, err := ParseYAML([]byte(`
endpoints: [https://sa1:8106/sa]
delivery:
  http_client:
    tls:
      ca_file: /etc/ssl/sa-ca.pem
      server_name: sa.internal
    auth:
      basic_auth_username: shipper
      basic_auth_password: pw
      headers:
        X-Project: web
receiver:
  http:
    tls:
      cert_file: /etc/ssl/recv.crt
      key_file: /etc/ssl/recv.key
    auth:
      bearer_token: s3cret
  beats:
    tls:
      cert_file: /etc/ssl/beats.crt
      key_file: /etc/ssl/beats.key
      client_ca_file: /etc/ssl/beats-ca.pem
`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	cfg := y.ToConfig()

	if cfg.ExporterTLSCAFile != "/etc/ssl/sa-ca.pem" || cfg.ExporterTLSServerName != "sa.internal" {
		t.Errorf("exporter tls = %q %q", cfg.ExporterTLSCAFile, cfg.ExporterTLSServerName)
	}
	if cfg.ExporterBasicAuthUsername != "shipper" || cfg.ExporterHeaders["X-Project"] != "web" {
		t.Errorf("exporter auth = %q %v", cfg.ExporterBasicAuthUsername, cfg.ExporterHeaders)
	}
	if cfg.HTTPTLSCertFile != "/etc/ssl/recv.crt" || cfg.HTTPBearerToken != "s3cret" {
		t.Errorf("http receiver = %q %q", cfg.HTTPTLSCertFile, cfg.HTTPBearerToken)
	}
	if cfg.BeatsTLSClientCAFile != "/etc/ssl/beats-ca.pem" {
		t.Errorf("beats client CA = %q", cfg.BeatsTLSClientCAFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseYAML_Defaults(t *testing.T) {
	y, err := ParseYAML([]byte("endpoints: [http://sa:8106/sa]\n"))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	cfg := y.ToConfig()
	def := DefaultConfig()

	if cfg.FlushInterval != def.FlushInterval || cfg.FlushBatchSize != def.FlushBatchSize {
		t.Errorf("buffer defaults not applied: %v %d", cfg.FlushInterval, cfg.FlushBatchSize)
	}
	if !cfg.SourceStatus {
		t.Error("source_status should default to true")
	}
	if cfg.HTTPListenAddr != def.HTTPListenAddr || cfg.BeatsListenAddr != def.BeatsListenAddr {
		t.Errorf("receiver defaults not applied: %q %q", cfg.HTTPListenAddr, cfg.BeatsListenAddr)
	}
	if cfg.MemoryLimitRatio != def.MemoryLimitRatio {
		t.Errorf("MemoryLimitRatio = %v", cfg.MemoryLimitRatio)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults plus an endpoint should validate: %v", err)
	}
}

func TestParseYAML_Empty(t *testing.T) {
	y, err := ParseYAML(nil)
	if err != nil {
		t.Fatalf("empty document should parse: %v", err)
	}
	if y.ToConfig().FlushBatchSize != 100 {
		t.Error("empty document should yield defaults")
	}
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "endpoint: http://sa:8106/sa\n"},
		{"bad duration", "buffer:\n  flush_interval: soon\n"},
		{"bad byte size", "receiver:\n  http:\n    max_request_body_size: 4MB\n"},
		{"not yaml", "endpoints: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1024", 1024, false},
		{"16Mi", 16 << 20, false},
		{"1.5Ki", 1536, false},
		{"2Gi", 2 << 30, false},
		{" 8Ki ", 8192, false},
		{"256MB", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatByteSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{1000, "1000"},
		{1024, "1Ki"},
		{16 << 20, "16Mi"},
		{3 << 30, "3Gi"},
		{1536, "1536"},
	}
	for _, tt := range tests {
		if got := FormatByteSize(tt.in); got != tt.want {
			t.Errorf("FormatByteSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDurationAndByteSize_Marshal(t *testing.T) {
	v := struct {
		D Duration `yaml:"d"`
		B ByteSize `yaml:"b"`
	}{Duration(90 * time.Second), ByteSize(2 << 20)}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "d: 1m30s") || !strings.Contains(s, "b: 2Mi") {
		t.Errorf("unexpected YAML:\n%s", s)
	}
}
