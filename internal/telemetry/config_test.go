package telemetry

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestConfigFromSoloEnv(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		env  map[string]string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "all set",
			env: map[string]string{
				"SOLO_OTEL_ENDPOINT":     " collector:4317 ",
				"SOLO_OTEL_INSECURE":     "1",
				"SOLO_OTEL_SERVICE":      "solo-dev",
				"SOLO_OTEL_DIAL_TIMEOUT": "750ms",
				"SOLO_OTEL_HEADERS":      "authorization=Bearer x",
			},
			want: func(t *testing.T, cfg Config) {
				if cfg.Endpoint != "collector:4317" || !cfg.Insecure || cfg.ServiceName != "solo-dev" {
					t.Fatalf("unexpected config %#v", cfg)
				}
				if cfg.DialTimeout != 750*time.Millisecond {
					t.Fatalf("unexpected dial timeout %s", cfg.DialTimeout)
				}
				if cfg.Headers["authorization"] != "Bearer x" {
					t.Fatalf("unexpected headers %#v", cfg.Headers)
				}
			},
		},
		{
			name: "unparseable values keep defaults",
			env: map[string]string{
				"SOLO_OTEL_INSECURE":     "maybe",
				"SOLO_OTEL_SERVICE":      "   ",
				"SOLO_OTEL_DIAL_TIMEOUT": "soon",
				"SOLO_OTEL_HEADERS":      "novalue",
			},
			want: func(t *testing.T, cfg Config) {
				if cfg.Enabled() || cfg.Insecure || cfg.DialTimeout != 0 || cfg.Headers != nil {
					t.Fatalf("expected defaults, got %#v", cfg)
				}
				if cfg.ServiceName != DefaultServiceName {
					t.Fatalf("expected %q, got %q", DefaultServiceName, cfg.ServiceName)
				}
			},
		},
		{
			name: "other prefixes are ignored",
			env:  map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Enabled() {
					t.Fatalf("only SOLO_OTEL_ENDPOINT enables export, got %#v", cfg)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.want(t, ConfigFromEnv(func(key string) string { return tc.env[key] }))
		})
	}

	if cfg := ConfigFromEnv(nil); cfg.ServiceName != DefaultServiceName || cfg.Enabled() {
		t.Fatalf("nil getenv must yield defaults, got %#v", cfg)
	}
}

func TestMergePrefersOverride(t *testing.T) {
	t.Parallel()

	base := Config{Endpoint: "a:1", ServiceName: "solo", Headers: map[string]string{"k": "v"}}
	got := base.Merge(Config{Endpoint: "b:2", DialTimeout: time.Second, Version: "1.2.0"})
	if got.Endpoint != "b:2" || got.ServiceName != "solo" || got.DialTimeout != time.Second {
		t.Fatalf("unexpected merge %#v", got)
	}
	if got.Headers["k"] != "v" || got.Version != "1.2.0" {
		t.Fatalf("unset override fields must keep the base, got %#v", got)
	}
}

func TestResourceAttributesFallBackToDefaultName(t *testing.T) {
	t.Parallel()

	lookup := func(attrs []attribute.KeyValue, key string) (string, bool) {
		for _, kv := range attrs {
			if string(kv.Key) == key {
				return kv.Value.AsString(), true
			}
		}
		return "", false
	}

	attrs := buildResourceAttributes(Config{ServiceName: " "})
	if name, _ := lookup(attrs, "service.name"); name != DefaultServiceName {
		t.Fatalf("expected default service name, got %q", name)
	}
	if _, ok := lookup(attrs, "service.version"); ok {
		t.Fatalf("blank version must be omitted: %v", attrs)
	}

	attrs = buildResourceAttributes(Config{ServiceName: "solo-ci", Version: "0.3.1"})
	if name, _ := lookup(attrs, "service.name"); name != "solo-ci" {
		t.Fatalf("unexpected service name %q", name)
	}
	if v, _ := lookup(attrs, "service.version"); v != "0.3.1" {
		t.Fatalf("unexpected service version %q", v)
	}
}

func TestParseHeadersRejectsMissingKey(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"=v", "a=1,nokey"} {
		if _, err := ParseHeaders(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	got, err := ParseHeaders(",x = 1,,y=")
	if err != nil || len(got) != 2 || got["x"] != "1" || got["y"] != "" {
		t.Fatalf("unexpected headers %#v (%v)", got, err)
	}
}
