package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sreq-inc/solo/internal/dispatch"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/telemetry"
)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
	UserAgent          string
}

// Client sends http and graphql calls. grpc calls are rejected.
type Client struct {
	opts        Options
	jar         http.CookieJar
	httpFactory func(Options) (*http.Client, error)
	telemetry   telemetry.Instrumenter
	logger      *zap.Logger
}

var _ dispatch.Executor = (*Client)(nil)

func NewClient(opts Options) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{opts: opts, jar: jar, telemetry: telemetry.Noop(), logger: zap.NewNop()}
	c.httpFactory = c.buildHTTPClient
	return c
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	if factory == nil {
		factory = c.buildHTTPClient
	}
	c.httpFactory = factory
}

// SetTelemetry configures the instrumenter used to emit OpenTelemetry spans. Passing nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

func (c *Client) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// Execute wraps the roundtrip in a telemetry span; the deferred End reports
// the outcome even on failure.
func (c *Client) Execute(ctx context.Context, call dispatch.Call) (resp *dispatch.Response, err error) {
	spanCtx, span := c.telemetry.Start(ctx, telemetry.RequestStart{
		Call:       call,
		Collection: call.Collection,
		Name:       call.Name,
	})
	start := time.Now()
	defer func() {
		result := telemetry.RequestResult{Err: err, Duration: time.Since(start)}
		if resp != nil {
			result.StatusCode = resp.StatusCode
			result.BodyBytes = len(resp.Body)
		}
		span.End(result)
	}()

	if call.Protocol == restfile.ProtocolGRPC {
		return nil, errdef.New(errdef.CodeUnsupported, "grpc transport is not available")
	}

	httpReq, err := buildRequest(spanCtx, call)
	if err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}

	client, err := c.httpFactory(c.opts)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("dispatching request",
		zap.String("protocol", string(call.Protocol)),
		zap.String("method", httpReq.Method),
		zap.String("url", call.URL))

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "perform request")
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeHTTP, closeErr, "close response body")
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}

	resp = &dispatch.Response{
		Status:     httpResp.Status,
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}
	c.logger.Debug("request finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
		zap.Int("bytes", len(body)))
	return resp, nil
}

// buildRequest applies one auth scheme: basic first, then bearer.
func buildRequest(ctx context.Context, call dispatch.Call) (*http.Request, error) {
	method := call.Method
	var body []byte
	switch call.Protocol {
	case restfile.ProtocolGraphQL:
		method = restfile.GraphQLMethod
		payload, err := dispatch.GraphQLBody(call.Query, call.Variables)
		if err != nil {
			return nil, err
		}
		body = payload
	default:
		if strings.TrimSpace(call.Body) != "" {
			if !json.Valid([]byte(call.Body)) {
				return nil, errdef.New(errdef.CodeValidation, "request body is not valid JSON")
			}
			body = []byte(call.Body)
		}
	}
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, call.URL, reader)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	switch {
	case call.Auth.Basic:
		httpReq.SetBasicAuth(call.Auth.Username, call.Auth.Password)
	case call.Auth.Bearer != "":
		httpReq.Header.Set("Authorization", "Bearer "+call.Auth.Bearer)
	}
	return httpReq, nil
}
