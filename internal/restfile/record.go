package restfile

import (
	"encoding/json"
	"strings"

	"github.com/sreq-inc/solo/internal/errdef"
)

// Record is the flat stored form of a request. Keys it does not know about are
// kept in Extra and written back as-is.
type Record struct {
	RequestType      Protocol     `json:"requestType,omitempty"`
	Method           string       `json:"method"`
	URL              string       `json:"url"`
	Payload          string       `json:"payload"`
	UseBasicAuth     bool         `json:"useBasicAuth"`
	Username         string       `json:"username"`
	Password         string       `json:"password"`
	BearerToken      string       `json:"bearerToken"`
	QueryParams      []QueryParam `json:"queryParams,omitempty"`
	Description      string       `json:"description,omitempty"`
	ActiveTab        string       `json:"activeTab,omitempty"`
	GraphQLQuery     string       `json:"graphqlQuery,omitempty"`
	GraphQLVariables string       `json:"graphqlVariables,omitempty"`
	GRPCService      string       `json:"grpcService,omitempty"`
	GRPCMethod       string       `json:"grpcMethod,omitempty"`
	GRPCMessage      string       `json:"grpcMessage,omitempty"`
	GRPCCallType     CallType     `json:"grpcCallType,omitempty"`
	ProtoContent     string       `json:"protoContent,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type recordAlias Record

func (r *Record) UnmarshalJSON(data []byte) error {
	var alias recordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range knownRecordKeys {
		delete(raw, key)
	}
	// transient response state is never carried forward
	delete(raw, "response")
	if len(raw) == 0 {
		raw = nil
	}
	*r = Record(alias)
	r.Extra = raw
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(recordAlias(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, known := merged[key]; !known {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

var knownRecordKeys = []string{
	"requestType", "method", "url", "payload", "useBasicAuth", "username",
	"password", "bearerToken", "queryParams", "description", "activeTab",
	"graphqlQuery", "graphqlVariables", "grpcService", "grpcMethod",
	"grpcMessage", "grpcCallType", "protoContent",
}

func (r Record) clone() Record {
	out := r
	if r.QueryParams != nil {
		out.QueryParams = append([]QueryParam(nil), r.QueryParams...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Decode builds the typed request for a stored record. A missing requestType
// means http, which is how records written before graphql support look.
func Decode(id string, rec Record) (Request, error) {
	protocol, err := ParseProtocol(string(rec.RequestType))
	if err != nil {
		return Request{}, errdef.Wrap(errdef.CodeMalformed, err, "request %s", id)
	}

	common := Common{
		URL:          rec.URL,
		UseBasicAuth: rec.UseBasicAuth,
		Username:     rec.Username,
		Password:     rec.Password,
		BearerToken:  rec.BearerToken,
		QueryParams:  append([]QueryParam(nil), rec.QueryParams...),
		Description:  rec.Description,
	}
	if len(common.QueryParams) == 0 {
		common.QueryParams = DefaultQueryParams()
	}

	var payload Payload
	switch protocol {
	case ProtocolGraphQL:
		payload = &GraphQL{Query: rec.GraphQLQuery, Variables: rec.GraphQLVariables}
	case ProtocolGRPC:
		callType := rec.GRPCCallType
		if strings.TrimSpace(string(callType)) == "" {
			callType = CallUnary
		}
		payload = &GRPC{
			Message:      rec.GRPCMessage,
			CallType:     callType,
			ProtoContent: rec.ProtoContent,
			Service:      rec.GRPCService,
			Method:       rec.GRPCMethod,
		}
	default:
		method := strings.ToUpper(strings.TrimSpace(rec.Method))
		if method == "" {
			method = "GET"
		}
		payload = &HTTP{Method: method, Body: rec.Payload}
	}

	return Request{ID: id, Common: common, Payload: payload, base: rec.clone()}, nil
}

// Record overlays the request's fields onto the record it was decoded from.
func (r Request) Record() Record {
	rec := r.base.clone()
	rec.RequestType = r.Protocol()
	rec.URL = r.Common.URL
	rec.UseBasicAuth = r.Common.UseBasicAuth
	rec.Username = r.Common.Username
	rec.Password = r.Common.Password
	rec.BearerToken = r.Common.BearerToken
	rec.QueryParams = append([]QueryParam(nil), r.Common.QueryParams...)
	if len(r.base.QueryParams) == 0 && isDefaultQuery(r.Common.QueryParams) {
		rec.QueryParams = nil
	}
	if rec.ActiveTab == "" {
		rec.ActiveTab = DefaultActiveTab
	}
	rec.Description = r.Common.Description

	switch p := r.Payload.(type) {
	case *GraphQL:
		rec.Method = GraphQLMethod
		rec.GraphQLQuery = p.Query
		rec.GraphQLVariables = p.Variables
	case *GRPC:
		rec.GRPCMessage = p.Message
		rec.GRPCCallType = p.CallType
		rec.ProtoContent = p.ProtoContent
		rec.GRPCService = p.Service
		rec.GRPCMethod = p.Method
	case *HTTP:
		// keep the stored spelling when only the case differs
		if !strings.EqualFold(r.base.Method, p.Method) {
			rec.Method = p.Method
		}
		rec.Payload = p.Body
	}
	return rec
}

const DefaultActiveTab = "body"

func isDefaultQuery(rows []QueryParam) bool {
	return len(rows) == 1 && rows[0] == QueryParam{Enabled: true}
}

// Entry is one element of a collection's stored array.
type Entry struct {
	FileName    string `json:"fileName"`
	FileData    Record `json:"fileData"`
	DisplayName string `json:"displayName,omitempty"`
}

const DefaultDisplayName = "Request"

func (e Entry) Name() string {
	if strings.TrimSpace(e.DisplayName) == "" {
		return DefaultDisplayName
	}
	return e.DisplayName
}
