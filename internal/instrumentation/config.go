package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the OpenTelemetry settings of the server. DefaultConfig
// reads it from the environment; LoadFile overlays the instrumentation
// section of the YAML config file.
type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"-"`

	// ServiceInstanceID defaults to the hostname, which is the pod name in
	// Kubernetes.
	ServiceInstanceID string `yaml:"service_instance_id"`
	K8sNamespace      string `yaml:"-"`
	K8sPodName        string `yaml:"-"`

	Enabled bool `yaml:"enabled"`

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string `yaml:"metrics_exporter"`

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string `yaml:"tracing_exporter"`

	// OTLPEndpoint is host:port without a scheme, e.g. "localhost:4318".
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// OTLPInsecure disables TLS towards the collector. Spans name the tools
	// and collections that were touched, so keep it off outside development.
	OTLPInsecure bool `yaml:"otlp_insecure"`

	TraceSamplingRate float64 `yaml:"trace_sampling_rate"`

	// PrometheusEndpoint is the HTTP path of the metrics server.
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`

	// DetailedLabels adds per-user labels to tool metrics. Cardinality grows
	// with the number of users.
	DetailedLabels bool `yaml:"detailed_labels"`

	AuditLogging AuditLoggingConfig `yaml:"audit"`
}

// AuditLoggingConfig controls the audit trail of tool invocations.
type AuditLoggingConfig struct {
	Enabled bool `yaml:"enabled"`

	// IncludePII logs full user emails instead of their hash. Route such
	// logs to storage with matching access controls.
	IncludePII bool `yaml:"include_pii"`

	// LogLevel is the level audit events are written at (debug, info, warn
	// or error).
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration described by the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:        envOr("OTEL_SERVICE_NAME", "workspace-mcp", parseString),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  envOr("OTEL_SERVICE_INSTANCE_ID", "", parseString),
		K8sNamespace:       envOr("K8S_NAMESPACE", envOr("POD_NAMESPACE", "", parseString), parseString),
		K8sPodName:         envOr("K8S_POD_NAME", envOr("HOSTNAME", "", parseString), parseString),
		Enabled:            envOr("INSTRUMENTATION_ENABLED", true, strconv.ParseBool),
		MetricsExporter:    envOr("METRICS_EXPORTER", ExporterPrometheus, parseString),
		TracingExporter:    envOr("TRACING_EXPORTER", ExporterNone, parseString),
		OTLPEndpoint:       envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "", parseString),
		OTLPInsecure:       envOr("OTEL_EXPORTER_OTLP_INSECURE", false, strconv.ParseBool),
		TraceSamplingRate:  envOr("OTEL_TRACES_SAMPLER_ARG", 0.1, parseFloat),
		PrometheusEndpoint: envOr("PROMETHEUS_ENDPOINT", "/metrics", parseString),
		DetailedLabels:     envOr("METRICS_DETAILED_LABELS", false, strconv.ParseBool),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envOr("AUDIT_LOGGING_ENABLED", true, strconv.ParseBool),
			IncludePII: envOr("AUDIT_LOGGING_INCLUDE_PII", false, strconv.ParseBool),
			LogLevel:   envOr("AUDIT_LOGGING_LEVEL", "info", parseString),
		},
	}
}

// LoadFile overlays the instrumentation section of a YAML file onto c.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	file := struct {
		Instrumentation *Config `yaml:"instrumentation"`
	}{Instrumentation: c}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.PrometheusEndpoint != "" && !strings.HasPrefix(c.PrometheusEndpoint, "/") {
		return fmt.Errorf("prometheus endpoint must be an absolute path, got %q", c.PrometheusEndpoint)
	}

	switch strings.ToLower(c.AuditLogging.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid audit log level %q", c.AuditLogging.LogLevel)
	}

	return nil
}

// envOr returns the parsed value of key, or def when the variable is unset
// or does not parse.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// Label values and exporter names.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// Outcomes of a background response store.
	StoreOutcomeStored  = "stored"
	StoreOutcomeFailed  = "failed"
	StoreOutcomeSkipped = "skipped"
	StoreOutcomeDropped = "dropped"

	ProviderHash   = "hash"
	ProviderOpenAI = "openai"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval of the periodic exporters.
	DefaultMetricInterval = 10 * time.Second
)
