package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "SOLO_OTEL_ENDPOINT"
	envInsecure    = "SOLO_OTEL_INSECURE"
	envService     = "SOLO_OTEL_SERVICE"
	envDialTimeout = "SOLO_OTEL_DIAL_TIMEOUT"
	envHeaders     = "SOLO_OTEL_HEADERS"

	DefaultServiceName = "solo"
)

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	DialTimeout time.Duration
	Headers     map[string]string
	Version     string
}

// Enabled reports whether spans should be exported.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the SOLO_OTEL_* variables through getenv. Unparseable
// values fall back to their defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{ServiceName: DefaultServiceName}
	if getenv == nil {
		return cfg
	}
	cfg.Endpoint = strings.TrimSpace(getenv(envEndpoint))
	if v, err := strconv.ParseBool(strings.TrimSpace(getenv(envInsecure))); err == nil {
		cfg.Insecure = v
	}
	if name := strings.TrimSpace(getenv(envService)); name != "" {
		cfg.ServiceName = name
	}
	if d, err := time.ParseDuration(strings.TrimSpace(getenv(envDialTimeout))); err == nil {
		cfg.DialTimeout = d
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// Merge overlays the non-zero fields of override onto c.
func (c Config) Merge(override Config) Config {
	out := c
	if override.Endpoint != "" {
		out.Endpoint = override.Endpoint
	}
	if override.Insecure {
		out.Insecure = true
	}
	if override.ServiceName != "" {
		out.ServiceName = override.ServiceName
	}
	if override.DialTimeout > 0 {
		out.DialTimeout = override.DialTimeout
	}
	if len(override.Headers) > 0 {
		out.Headers = override.Headers
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	return out
}

// ParseHeaders reads "k=v, k2=v2". Blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q", part)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
