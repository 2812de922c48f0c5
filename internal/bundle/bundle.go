// Package bundle moves a whole collection, requests and variables, in and out
// of a single YAML document.
package bundle

import (
	"bytes"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sreq-inc/solo/internal/collection"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/kvstore"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

const Version = 1

type Bundle struct {
	Version    int             `yaml:"version"`
	Collection string          `yaml:"collection"`
	Variables  []vars.Variable `yaml:"variables,omitempty"`
	Requests   []Request       `yaml:"requests"`
}

type Request struct {
	ID          string                `yaml:"id,omitempty"`
	Name        string                `yaml:"name,omitempty"`
	Protocol    restfile.Protocol     `yaml:"protocol"`
	Method      string                `yaml:"method,omitempty"`
	URL         string                `yaml:"url"`
	Description string                `yaml:"description,omitempty"`
	Query       []restfile.QueryParam `yaml:"query,omitempty"`
	Auth        *Auth                 `yaml:"auth,omitempty"`
	Body        string                `yaml:"body,omitempty"`
	GraphQL     *GraphQL              `yaml:"graphql,omitempty"`
	GRPC        *GRPC                 `yaml:"grpc,omitempty"`
}

type Auth struct {
	Basic    bool   `yaml:"basic,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Bearer   string `yaml:"bearer,omitempty"`
}

type GraphQL struct {
	Query     string `yaml:"query"`
	Variables string `yaml:"variables,omitempty"`
}

type GRPC struct {
	Service  string            `yaml:"service,omitempty"`
	Method   string            `yaml:"method,omitempty"`
	CallType restfile.CallType `yaml:"call_type,omitempty"`
	Message  string            `yaml:"message,omitempty"`
	Proto    string            `yaml:"proto,omitempty"`
}

// Export snapshots collection name from ix, reading its variables from store.
func Export(ix *collection.Index, store kvstore.Store, name string) (Bundle, error) {
	entries, err := ix.Entries(name)
	if err != nil {
		return Bundle{}, err
	}
	table := vars.NewTable(store, nil)
	if err := table.LoadFor(name); err != nil {
		return Bundle{}, err
	}

	out := Bundle{Version: Version, Collection: name, Requests: []Request{}}
	for _, row := range table.Rows() {
		if row != (vars.Variable{Enabled: true}) {
			out.Variables = append(out.Variables, row)
		}
	}
	for _, entry := range entries {
		req, err := restfile.Decode(entry.FileName, entry.FileData)
		if err != nil {
			return Bundle{}, err
		}
		out.Requests = append(out.Requests, fromRequest(entry.DisplayName, req))
	}
	return out, nil
}

func Encode(b Bundle) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return nil, errdef.Wrap(errdef.CodeMalformed, err, "encode bundle")
	}
	if err := enc.Close(); err != nil {
		return nil, errdef.Wrap(errdef.CodeMalformed, err, "encode bundle")
	}
	return buf.Bytes(), nil
}

// Decode parses a bundle. Unknown fields and other versions are rejected.
func Decode(data []byte) (Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, errdef.Wrap(errdef.CodeMalformed, err, "parse bundle")
	}
	if b.Version != Version {
		return Bundle{}, errdef.New(errdef.CodeValidation, "unsupported bundle version %d", b.Version)
	}
	for i, r := range b.Requests {
		if _, err := restfile.ParseProtocol(string(r.Protocol)); err != nil {
			return Bundle{}, errdef.Wrap(errdef.CodeValidation, err, "request %d", i+1)
		}
		if r.GRPC != nil && r.GRPC.CallType != "" {
			if _, err := restfile.ParseCallType(string(r.GRPC.CallType)); err != nil {
				return Bundle{}, errdef.Wrap(errdef.CodeValidation, err, "request %d", i+1)
			}
		}
	}
	return b, nil
}

type ImportOptions struct {
	// Name overrides the collection name carried by the bundle.
	Name string
	// NewID replaces ids that are missing or already taken. Defaults to
	// collection.NewRequestID.
	NewID func() string
}

// Import creates a new collection from b. The target name must not exist.
func Import(ix *collection.Index, store kvstore.Store, b Bundle, opts ImportOptions) (string, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = strings.TrimSpace(b.Collection)
	}
	newID := opts.NewID
	if newID == nil {
		newID = collection.NewRequestID
	}

	if _, err := ix.CreateCollection(collection.ActiveContext{}, name); err != nil {
		return "", err
	}
	if err := fill(ix, store, name, b, newID); err != nil {
		if _, rmErr := ix.RemoveCollection(collection.ActiveContext{}, name); rmErr != nil {
			return "", errors.Join(err, rmErr)
		}
		return "", err
	}
	return name, nil
}

// fill writes the variables and requests of b into the freshly created
// collection name. Import removes the collection again when it fails.
func fill(ix *collection.Index, store kvstore.Store, name string, b Bundle, newID func() string) error {
	table := vars.NewTable(store, nil)
	if err := table.LoadFor(name); err != nil {
		return err
	}
	if err := table.Replace(b.Variables); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(b.Requests))
	for _, r := range b.Requests {
		id := strings.TrimSpace(r.ID)
		if id == "" || taken(ix, seen, id) {
			id = newID()
		}
		seen[id] = struct{}{}
		if err := ix.SaveRequest(name, toRequest(id, r)); err != nil {
			return err
		}
		if strings.TrimSpace(r.Name) != "" {
			if err := ix.RenameRequestDisplay(name, id, r.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func taken(ix *collection.Index, seen map[string]struct{}, id string) bool {
	if _, ok := seen[id]; ok {
		return true
	}
	_, err := ix.FindRequest(id, "")
	return err == nil
}

func fromRequest(displayName string, req restfile.Request) Request {
	out := Request{
		ID:          req.ID,
		Name:        displayName,
		Protocol:    req.Protocol(),
		URL:         req.Common.URL,
		Description: req.Common.Description,
	}
	for _, p := range req.Common.QueryParams {
		if p != (restfile.QueryParam{Enabled: true}) {
			out.Query = append(out.Query, p)
		}
	}
	auth := Auth{
		Basic:    req.Common.UseBasicAuth,
		Username: req.Common.Username,
		Password: req.Common.Password,
		Bearer:   req.Common.BearerToken,
	}
	if auth != (Auth{}) {
		out.Auth = &auth
	}
	switch p := req.Payload.(type) {
	case *restfile.HTTP:
		out.Method = p.Method
		out.Body = p.Body
	case *restfile.GraphQL:
		out.GraphQL = &GraphQL{Query: p.Query, Variables: p.Variables}
	case *restfile.GRPC:
		out.GRPC = &GRPC{
			Service:  p.Service,
			Method:   p.Method,
			CallType: p.CallType,
			Message:  p.Message,
			Proto:    p.ProtoContent,
		}
	}
	return out
}

func toRequest(id string, r Request) restfile.Request {
	protocol, _ := restfile.ParseProtocol(string(r.Protocol))
	req := restfile.New(id, protocol)
	req.Common.URL = r.URL
	req.Common.Description = r.Description
	if len(r.Query) > 0 {
		req.Common.QueryParams = append([]restfile.QueryParam(nil), r.Query...)
	}
	if r.Auth != nil {
		req.Common.UseBasicAuth = r.Auth.Basic
		req.Common.Username = r.Auth.Username
		req.Common.Password = r.Auth.Password
		req.Common.BearerToken = r.Auth.Bearer
	}
	switch p := req.Payload.(type) {
	case *restfile.HTTP:
		if m := strings.ToUpper(strings.TrimSpace(r.Method)); m != "" {
			p.Method = m
		}
		p.Body = r.Body
	case *restfile.GraphQL:
		if r.GraphQL != nil {
			p.Query = r.GraphQL.Query
			p.Variables = r.GraphQL.Variables
		}
	case *restfile.GRPC:
		if r.GRPC != nil {
			p.Service = r.GRPC.Service
			p.Method = r.GRPC.Method
			p.Message = r.GRPC.Message
			p.ProtoContent = r.GRPC.Proto
			if r.GRPC.CallType != "" {
				p.CallType = r.GRPC.CallType
			}
		}
	}
	return req
}
