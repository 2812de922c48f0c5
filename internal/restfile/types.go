package restfile

import (
	"strings"

	"github.com/sreq-inc/solo/internal/errdef"
)

type Protocol string

const (
	ProtocolHTTP    Protocol = "http"
	ProtocolGraphQL Protocol = "graphql"
	ProtocolGRPC    Protocol = "grpc"
)

func ParseProtocol(raw string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ProtocolHTTP:
		return ProtocolHTTP, nil
	case ProtocolGraphQL:
		return ProtocolGraphQL, nil
	case ProtocolGRPC:
		return ProtocolGRPC, nil
	default:
		return "", errdef.New(errdef.CodeValidation, "unknown protocol %q", raw)
	}
}

type CallType string

const (
	CallUnary           CallType = "unary"
	CallServerStreaming CallType = "server_streaming"
	CallClientStreaming CallType = "client_streaming"
	CallBidirectional   CallType = "bidirectional"
)

func ParseCallType(raw string) (CallType, error) {
	switch ct := CallType(strings.TrimSpace(raw)); ct {
	case CallUnary, CallServerStreaming, CallClientStreaming, CallBidirectional:
		return ct, nil
	default:
		return "", errdef.New(errdef.CodeValidation, "unknown grpc call type %q", raw)
	}
}

type QueryParam struct {
	Key     string `json:"key"     yaml:"key"`
	Value   string `json:"value"   yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

func DefaultQueryParams() []QueryParam {
	return []QueryParam{{Enabled: true}}
}

// Common holds the fields every protocol shares.
type Common struct {
	URL          string
	UseBasicAuth bool
	Username     string
	Password     string
	BearerToken  string
	QueryParams  []QueryParam
	Description  string
}

func (c Common) clone() Common {
	out := c
	if c.QueryParams != nil {
		out.QueryParams = append([]QueryParam(nil), c.QueryParams...)
	}
	return out
}

// Payload is implemented by *HTTP, *GraphQL and *GRPC only.
type Payload interface {
	Protocol() Protocol
	clonePayload() Payload
}

type HTTP struct {
	Method string
	Body   string
}

func (*HTTP) Protocol() Protocol { return ProtocolHTTP }

func (p *HTTP) clonePayload() Payload {
	cp := *p
	return &cp
}

// GraphQL requests are always sent as POST.
type GraphQL struct {
	Query     string
	Variables string
}

func (*GraphQL) Protocol() Protocol { return ProtocolGraphQL }

func (p *GraphQL) clonePayload() Payload {
	cp := *p
	return &cp
}

type GRPC struct {
	Message      string
	CallType     CallType
	ProtoContent string
	Service      string
	Method       string
}

func (*GRPC) Protocol() Protocol { return ProtocolGRPC }

func (p *GRPC) clonePayload() Payload {
	cp := *p
	return &cp
}

const (
	DefaultGraphQLQuery = "query {\n  \n}"
	DefaultJSONObject   = "{}"
	GraphQLMethod       = "POST"
)

func DefaultPayload(protocol Protocol) Payload {
	switch protocol {
	case ProtocolGraphQL:
		return &GraphQL{Query: DefaultGraphQLQuery, Variables: DefaultJSONObject}
	case ProtocolGRPC:
		return &GRPC{Message: DefaultJSONObject, CallType: CallUnary}
	default:
		return &HTTP{Method: "GET"}
	}
}

func DefaultCommon() Common {
	return Common{QueryParams: DefaultQueryParams()}
}

// Request is one saved call definition. base carries the stored record it was
// decoded from so fields this protocol ignores are written back untouched.
type Request struct {
	ID      string
	Common  Common
	Payload Payload
	base    Record
}

func New(id string, protocol Protocol) Request {
	return Request{
		ID:      id,
		Common:  DefaultCommon(),
		Payload: DefaultPayload(protocol),
	}
}

func (r Request) Protocol() Protocol {
	if r.Payload == nil {
		return ProtocolHTTP
	}
	return r.Payload.Protocol()
}

func (r Request) HTTP() (*HTTP, bool) {
	p, ok := r.Payload.(*HTTP)
	return p, ok
}

func (r Request) GraphQL() (*GraphQL, bool) {
	p, ok := r.Payload.(*GraphQL)
	return p, ok
}

func (r Request) GRPC() (*GRPC, bool) {
	p, ok := r.Payload.(*GRPC)
	return p, ok
}

// Method is the HTTP verb the request is dispatched with, or the rpc method
// name for grpc.
func (r Request) Method() string {
	switch p := r.Payload.(type) {
	case *HTTP:
		return p.Method
	case *GraphQL:
		return GraphQLMethod
	case *GRPC:
		return p.Method
	default:
		return ""
	}
}

func (r Request) Clone() Request {
	out := r
	out.Common = r.Common.clone()
	if r.Payload != nil {
		out.Payload = r.Payload.clonePayload()
	}
	out.base = r.base.clone()
	return out
}

// WithProtocol switches to protocol's default payload keeping common fields.
func (r Request) WithProtocol(protocol Protocol) Request {
	out := r.Clone()
	if r.Protocol() != protocol || r.Payload == nil {
		out.Payload = DefaultPayload(protocol)
	}
	return out
}
