package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sreq-inc/solo/internal/dispatch"
)

var (
	tracerName  = "github.com/sreq-inc/solo/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

// RequestStart describes the call about to be sent. Collection and Name are
// optional labels from the workspace.
type RequestStart struct {
	Call       dispatch.Call
	Collection string
	Name       string
}

type RequestResult struct {
	Err        error
	StatusCode int
	Duration   time.Duration
	BodyBytes  int
}

type RequestSpan interface {
	End(result RequestResult)
}

// setup collects what New wires into the tracer provider. Tests pass a span
// recorder here instead of configuring an endpoint.
type setup struct {
	exporter   sdktrace.SpanExporter
	processors []sdktrace.SpanProcessor
}

func (s setup) empty() bool {
	return s.exporter == nil && len(s.processors) == 0
}

type Option func(*setup)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(s *setup) {
		if proc != nil {
			s.processors = append(s.processors, proc)
		}
	}
}

// WithExporter replaces the OTLP exporter New would dial.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(s *setup) {
		if exp != nil {
			s.exporter = exp
		}
	}
}

type tracing struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	once     sync.Once
}

// New returns Noop when there is no endpoint and nothing was injected through
// opts, so an unconfigured install never dials out.
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	var st setup
	for _, opt := range opts {
		opt(&st)
	}
	if !cfg.Enabled() && st.empty() {
		return Noop(), nil
	}
	if st.exporter == nil && cfg.Enabled() {
		exp, err := newExporter(cfg)
		if err != nil {
			return nil, err
		}
		st.exporter = exp
	}

	provider, err := newProvider(cfg, st)
	if err != nil {
		return nil, err
	}
	return &tracing{tracer: provider.Tracer(tracerName), provider: provider}, nil
}

func newProvider(cfg Config, st setup) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}
	tpOpts := make([]sdktrace.TracerProviderOption, 0, len(st.processors)+2)
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if st.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(st.exporter))
	}
	for _, proc := range st.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}
	return sdktrace.NewTracerProvider(tpOpts...), nil
}

func (t *tracing) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	ctx, span := t.tracer.Start(ctx, spanNameFor(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(buildSpanAttributes(info)...),
	)
	return ctx, &requestSpan{span: span}
}

// Shutdown flushes pending spans. Only the first call does any work.
func (t *tracing) Shutdown(ctx context.Context) error {
	var err error
	t.once.Do(func() {
		err = t.provider.Shutdown(ctx)
	})
	return err
}

type requestSpan struct {
	span trace.Span
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}
	if result.Duration > 0 {
		rs.span.SetAttributes(attribute.Int64("solo.duration_ms", result.Duration.Milliseconds()))
	}
	if result.BodyBytes > 0 {
		rs.span.SetAttributes(attribute.Int("solo.response.bytes", result.BodyBytes))
	}

	statusCode := codes.Ok
	statusMsg := "OK"
	switch {
	case result.Err != nil:
		rs.span.RecordError(result.Err)
		statusCode = codes.Error
		statusMsg = result.Err.Error()
	case result.StatusCode >= 400:
		statusCode = codes.Error
		statusMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
	}

	rs.span.SetStatus(statusCode, statusMsg)
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) End(RequestResult) {}

const defaultDialTimeout = 5 * time.Second

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("telemetry endpoint is required")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) != 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	return otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if strings.TrimSpace(name) == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
	}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	call := info.Call
	attrs := []attribute.KeyValue{
		attribute.String("solo.protocol", string(call.Protocol)),
	}
	if call.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(call.Method))
	}
	if u, err := url.Parse(call.URL); err == nil && call.URL != "" {
		if u.Scheme != "" {
			attrs = append(attrs, semconv.HTTPSchemeKey.String(u.Scheme))
		}
		if u.Host != "" {
			attrs = append(attrs, httpHostKey.String(u.Host))
		}
		if target := u.RequestURI(); target != "" {
			attrs = append(attrs, semconv.HTTPTargetKey.String(target))
		}
	}
	if call.Service != "" {
		attrs = append(attrs, semconv.RPCServiceKey.String(call.Service))
	}
	if call.RPC != "" {
		attrs = append(attrs, semconv.RPCMethodKey.String(call.RPC))
	}
	if name := strings.TrimSpace(info.Collection); name != "" {
		attrs = append(attrs, attribute.String("solo.collection", name))
	}
	if name := strings.TrimSpace(info.Name); name != "" {
		attrs = append(attrs, attribute.String("solo.request.name", name))
	}
	return attrs
}

func spanNameFor(info RequestStart) string {
	if name := strings.TrimSpace(info.Name); name != "" {
		return name
	}
	call := info.Call
	if call.Service != "" {
		return call.Service + "/" + call.RPC
	}
	if call.Method != "" {
		if u, err := url.Parse(call.URL); err == nil && u.Host != "" {
			return fmt.Sprintf("%s %s", call.Method, u.Host)
		}
		return call.Method
	}
	return string(call.Protocol) + ".request"
}
