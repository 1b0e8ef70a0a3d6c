package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/szibis/sa-log-shipper/internal/logging"
)

// ValidationSeverity indicates the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError indicates a configuration error that prevents startup.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates a potential issue that won't prevent startup.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// ValidationResult holds the complete validation output.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// JSON returns the validation result as formatted JSON.
func (r *ValidationResult) JSON() string {
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

type fieldError struct {
	field string
	msg   string
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	errs := c.fieldErrors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.field + " " + e.msg
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (c *Config) fieldErrors() []fieldError {
	var errs []fieldError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, fieldError{field: field, msg: fmt.Sprintf(format, args...)})
	}

	if len(c.Endpoints) == 0 {
		add("endpoint", "must list at least one collector URL")
	}
	for _, ep := range c.Endpoints {
		u, err := url.Parse(ep)
		switch {
		case err != nil:
			add("endpoint", "must be a valid URL, got %q: %v", ep, err)
		case u.Scheme != "http" && u.Scheme != "https":
			add("endpoint", "must use http or https, got %q", ep)
		case u.Host == "":
			add("endpoint", "must include a host, got %q", ep)
		}
	}

	if c.FlushInterval <= 0 {
		add("flush-interval", "must be positive, got %v", c.FlushInterval)
	}
	if c.FlushBatchSize <= 0 {
		add("flush-batch-size", "must be positive, got %d", c.FlushBatchSize)
	}
	if c.ShardCount < 0 {
		add("shards", "must not be negative, got %d", c.ShardCount)
	}
	for _, f := range c.RoutingFields {
		if strings.TrimSpace(f) == "" {
			add("routing-field", "must not be empty")
		}
	}

	if c.Cooldown < 0 {
		add("endpoint-cooldown", "must not be negative, got %v", c.Cooldown)
	}
	if c.BackoffInitial <= 0 {
		add("backoff-initial", "must be positive, got %v", c.BackoffInitial)
	}
	if c.BackoffMax < c.BackoffInitial {
		add("backoff-max", "must be at least backoff-initial (%v), got %v", c.BackoffInitial, c.BackoffMax)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		add("compression-level", "must be between 0 and 9, got %d", c.CompressionLevel)
	}
	if c.ExporterTimeout <= 0 {
		add("exporter-timeout", "must be positive, got %v", c.ExporterTimeout)
	}

	if (c.ExporterTLSCertFile == "") != (c.ExporterTLSKeyFile == "") {
		add("exporter-tls-cert-file", "and exporter-tls-key-file must be set together")
	}
	if (c.ExporterBasicAuthUsername == "") != (c.ExporterBasicAuthPassword == "") {
		add("exporter-basic-auth-username", "and exporter-basic-auth-password must be set together")
	}

	if c.HTTPListenAddr == "" && c.BeatsListenAddr == "" {
		add("http-listen", "must be set when beats-listen is empty")
	}
	if c.HTTPListenAddr != "" && !strings.HasPrefix(c.HTTPReceiverPath, "/") {
		add("http-receiver-path", "must start with /, got %q", c.HTTPReceiverPath)
	}
	if c.ReceiverMaxRequestBodySize < 0 {
		add("receiver-max-body-size", "must not be negative, got %d", c.ReceiverMaxRequestBodySize)
	}
	if (c.HTTPTLSCertFile == "") != (c.HTTPTLSKeyFile == "") {
		add("http-tls-cert-file", "and http-tls-key-file must be set together")
	}
	if c.HTTPTLSClientCAFile != "" && c.HTTPTLSCertFile == "" {
		add("http-tls-client-ca-file", "requires http-tls-cert-file")
	}
	if (c.HTTPBasicAuthUsername == "") != (c.HTTPBasicAuthPassword == "") {
		add("http-basic-auth-username", "and http-basic-auth-password must be set together")
	}
	if (c.BeatsTLSCertFile == "") != (c.BeatsTLSKeyFile == "") {
		add("beats-tls-cert-file", "and beats-tls-key-file must be set together")
	}
	if c.BeatsTLSClientCAFile != "" && c.BeatsTLSCertFile == "" {
		add("beats-tls-client-ca-file", "requires beats-tls-cert-file")
	}
	if c.StatsInterval <= 0 {
		add("stats-interval", "must be positive, got %v", c.StatsInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log-level", "must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.TelemetryEndpoint != "" && c.TelemetryProtocol != "grpc" && c.TelemetryProtocol != "http" {
		add("telemetry-protocol", "must be grpc or http, got %q", c.TelemetryProtocol)
	}
	if c.MemoryLimitRatio < 0 || c.MemoryLimitRatio > 1 {
		add("memory-limit-ratio", "must be between 0.0 and 1.0, got %v", c.MemoryLimitRatio)
	}
	return errs
}

// ValidateFile loads a YAML config file and validates it, returning structured results.
func ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{
		Valid: true,
		File:  path,
	}

	info, err := os.Stat(path)
	if err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "file",
			Message:  fmt.Sprintf("cannot access file: %v", err),
		})
		return result
	}
	if info.IsDir() {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "file",
			Message:  "path is a directory, expected a file",
		})
		return result
	}

	yamlCfg, err := LoadYAML(path)
	if err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "yaml",
			Message:  fmt.Sprintf("YAML parse error: %v", err),
		})
		return result
	}

	cfg := yamlCfg.ToConfig()
	for _, e := range cfg.fieldErrors() {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    e.field,
			Message:  e.field + " " + e.msg,
		})
	}

	addWarnings(cfg, result)
	return result
}

// addWarnings checks for non-fatal issues that are worth flagging.
func addWarnings(cfg *Config, result *ValidationResult) {
	if len(cfg.Endpoints) == 1 {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityWarning,
			Field:    "endpoint",
			Message:  "a single collector has no failover target",
		})
	}
	if cfg.ShardCount > 0 && cfg.ShardCount < len(cfg.Endpoints) {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityWarning,
			Field:    "shards",
			Message:  fmt.Sprintf("%d shards leave some of %d collectors without a preferred shard", cfg.ShardCount, len(cfg.Endpoints)),
		})
	}
	if cfg.ExporterTLSInsecureSkipVerify {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityWarning,
			Field:    "exporter-tls-insecure-skip-verify",
			Message:  "collector certificates are not verified",
		})
	}
	if cfg.HTTPListenAddr != "" && cfg.HTTPTLSCertFile == "" &&
		(cfg.HTTPBearerToken != "" || cfg.HTTPBasicAuthPassword != "") {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityWarning,
			Field:    "http-tls-cert-file",
			Message:  "HTTP receiver credentials travel in plaintext without TLS",
		})
	}
}
