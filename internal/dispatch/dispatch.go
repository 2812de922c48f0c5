// Package dispatch turns a stored request plus a variable table into the call
// handed to an executor. Preview, execution and curl export all build their
// URL here so they agree on the resolved text.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

type Auth struct {
	Basic    bool
	Username string
	Password string
	Bearer   string
}

// Call is a request ready for transport. URL and Auth are resolved and URL
// carries the rebuilt query string. Body, GraphQL text and the grpc message
// are passed through without placeholder substitution.
type Call struct {
	Protocol restfile.Protocol
	Method   string
	URL      string
	Body     string

	Query     string
	Variables string

	Service  string
	RPC      string
	CallType restfile.CallType
	Message  string
	Proto    string

	Auth Auth

	// Collection and Name label traces and logs; they are never sent.
	Collection string
	Name       string
}

type Response struct {
	Status     string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

type Executor interface {
	Execute(ctx context.Context, call Call) (*Response, error)
}

type ExecutorFunc func(ctx context.Context, call Call) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, call Call) (*Response, error) {
	return f(ctx, call)
}

// Prepare resolves the URL, query rows and auth material of req. Any
// placeholder left in them blocks the call with a *vars.UnresolvedError.
func Prepare(req restfile.Request, rows []vars.Variable) (Call, error) {
	if err := vars.Check(rows, Fragments(req.Common)...); err != nil {
		return Call{}, err
	}

	call := Call{
		Protocol: req.Protocol(),
		Method:   req.Method(),
		URL:      WithQuery(vars.Resolve(req.Common.URL, rows), ResolveParams(req.Common.QueryParams, rows)),
		Auth:     ResolveAuth(req.Common, rows),
	}
	switch p := req.Payload.(type) {
	case *restfile.HTTP:
		call.Body = p.Body
	case *restfile.GraphQL:
		call.Query = p.Query
		call.Variables = p.Variables
	case *restfile.GRPC:
		call.Method = ""
		call.Service = p.Service
		call.RPC = p.Method
		call.CallType = p.CallType
		call.Message = p.Message
		call.Proto = p.ProtoContent
	default:
		return Call{}, errdef.New(errdef.CodeValidation, "request %s has no payload", req.ID)
	}
	if strings.TrimSpace(call.URL) == "" && call.Protocol != restfile.ProtocolGRPC {
		return Call{}, errdef.New(errdef.CodeValidation, "url is empty")
	}
	return call, nil
}

// Fragments lists the text that is resolved before leaving the workspace:
// the URL, usable query rows and the auth values that take effect.
func Fragments(common restfile.Common) []string {
	texts := []string{common.URL}
	for _, p := range usableParams(common.QueryParams) {
		texts = append(texts, p.Key, p.Value)
	}
	if basicAuthOn(common) {
		texts = append(texts, common.Username, common.Password)
	}
	if strings.TrimSpace(common.BearerToken) != "" {
		texts = append(texts, common.BearerToken)
	}
	return texts
}

// ResolveAuth resolves the auth fields. Basic auth only counts with a
// username; a blank bearer token is dropped.
func ResolveAuth(common restfile.Common, rows []vars.Variable) Auth {
	var auth Auth
	if basicAuthOn(common) {
		auth.Basic = true
		auth.Username = vars.Resolve(common.Username, rows)
		auth.Password = vars.Resolve(common.Password, rows)
	}
	if strings.TrimSpace(common.BearerToken) != "" {
		auth.Bearer = vars.Resolve(common.BearerToken, rows)
	}
	return auth
}

func basicAuthOn(common restfile.Common) bool {
	return common.UseBasicAuth && common.Username != ""
}

// ResolvedURL is the URL Prepare would dispatch to, checked on its own for
// previews.
func ResolvedURL(common restfile.Common, rows []vars.Variable) (string, error) {
	texts := []string{common.URL}
	for _, p := range usableParams(common.QueryParams) {
		texts = append(texts, p.Key, p.Value)
	}
	if err := vars.Check(rows, texts...); err != nil {
		return "", err
	}
	return WithQuery(vars.Resolve(common.URL, rows), ResolveParams(common.QueryParams, rows)), nil
}

// ResolveParams keeps enabled rows with a non-blank key and value and
// resolves both sides.
func ResolveParams(params []restfile.QueryParam, rows []vars.Variable) []restfile.QueryParam {
	usable := usableParams(params)
	for i := range usable {
		usable[i].Key = vars.Resolve(usable[i].Key, rows)
		usable[i].Value = vars.Resolve(usable[i].Value, rows)
	}
	return usable
}

func usableParams(params []restfile.QueryParam) []restfile.QueryParam {
	out := make([]restfile.QueryParam, 0, len(params))
	for _, p := range params {
		if !p.Enabled || strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Value) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// WithQuery replaces any query on base with params. No usable params leaves
// base untouched.
func WithQuery(base string, params []restfile.QueryParam) string {
	if len(params) == 0 {
		return base
	}
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}
	var b strings.Builder
	b.WriteString(base)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(EncodeURIComponent(p.Key))
		b.WriteByte('=')
		b.WriteString(EncodeURIComponent(p.Value))
	}
	return b.String()
}

// EncodeURIComponent percent-encodes every byte outside
// A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if uriUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func uriUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

// GraphQLBody is the JSON document posted for a graphql request. Variables
// that do not parse as JSON are sent as an empty object.
func GraphQLBody(query, variables string) ([]byte, error) {
	parsed := json.RawMessage(restfile.DefaultJSONObject)
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(variables)); err == nil && compact.Len() > 0 {
		parsed = compact.Bytes()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(struct {
		Query     string          `json:"query"`
		Variables json.RawMessage `json:"variables"`
	}{Query: query, Variables: parsed})
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeValidation, err, "encode graphql body")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
