package vectorstore

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for endpoint discovery.
const (
	DefaultHost               = "localhost"
	DefaultPort               = 6334
	DefaultHealthCheckTimeout = 2 * time.Second
	DefaultRetryInterval      = 30 * time.Second
)

// DefaultPorts are the local ports probed, in order, when no URL is configured
// or the configured URL does not respond.
var DefaultPorts = []int{6334, 6335, 6336}

// Config controls how the ConnectionManager finds a vector store.
type Config struct {
	// URL is an explicit endpoint (http, https or grpc scheme). Tried first.
	URL string

	// Host and Ports are probed in order after URL.
	Host  string
	Ports []int

	APIKey string

	// HealthCheckTimeout bounds each candidate's ListCollections probe.
	HealthCheckTimeout time.Duration

	// RetryInterval is the minimum time between discovery attempts after a
	// failed one. Zero retries on every access.
	RetryInterval time.Duration
}

// DefaultConfig returns a Config populated from QDRANT_* environment variables.
func DefaultConfig() Config {
	return Config{
		URL:                os.Getenv("QDRANT_URL"),
		Host:               getEnvOrDefault("QDRANT_HOST", DefaultHost),
		Ports:              parsePorts(os.Getenv("QDRANT_PORTS"), DefaultPorts),
		APIKey:             os.Getenv("QDRANT_API_KEY"),
		HealthCheckTimeout: getEnvDurationOrDefault("QDRANT_HEALTH_TIMEOUT", DefaultHealthCheckTimeout),
		RetryInterval:      getEnvDurationOrDefault("QDRANT_RETRY_INTERVAL", DefaultRetryInterval),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL != "" {
		if _, err := ParseEndpoint(c.URL); err != nil {
			return err
		}
	}
	for _, p := range c.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	if c.HealthCheckTimeout < 0 || c.RetryInterval < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Endpoint is one candidate vector store address.
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UseTLS bool   `json:"tls"`
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses an endpoint URL such as "https://qdrant.example.com:6334".
// A missing port defaults to 6334; https enables TLS. A bare "host:port" is accepted.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty URL", ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		raw = "grpc://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	ep := Endpoint{Host: u.Hostname(), Port: DefaultPort}
	switch u.Scheme {
	case "https":
		ep.UseTLS = true
	case "http", "grpc":
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrInvalidEndpoint, p)
		}
		ep.Port = port
	}
	return ep, nil
}

func parsePorts(s string, def []int) []int {
	if strings.TrimSpace(s) == "" {
		return append([]int(nil), def...)
	}
	var ports []int
	for _, part := range strings.Split(s, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return append([]int(nil), def...)
	}
	return ports
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
