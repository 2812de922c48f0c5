// Package draft holds the single request currently open for editing. While
// bound to a saved request every edit is written straight back.
package draft

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sreq-inc/solo/internal/dispatch"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
)

// Saver persists the bound request. collection.Index satisfies it.
type Saver interface {
	SaveRequest(collection string, req restfile.Request) error
}

type Draft struct {
	saver      Saver
	req        restfile.Request
	collection string
	bound      bool

	// Transient dispatch state, never persisted.
	Loading  bool
	Response *dispatch.Response
	Err      error
}

// New returns an unbound http draft.
func New(saver Saver) *Draft {
	return &Draft{saver: saver, req: restfile.New("", restfile.ProtocolHTTP)}
}

// Request returns a copy of the current contents.
func (d *Draft) Request() restfile.Request {
	return d.req.Clone()
}

func (d *Draft) Binding() (collection, id string, bound bool) {
	if !d.bound {
		return "", "", false
	}
	return d.collection, d.req.ID, true
}

// BindTo loads req in one step and binds to it. Transient state is cleared.
func (d *Draft) BindTo(collection string, req restfile.Request) {
	d.req = req.Clone()
	d.collection = collection
	d.bound = true
	d.clearTransient()
}

// MoveTo follows a rename of the bound collection. Unbound drafts ignore it.
func (d *Draft) MoveTo(from, to string) {
	if d.bound && d.collection == from {
		d.collection = to
	}
}

// Reset unbinds before restoring defaults so nothing is written back.
func (d *Draft) Reset() {
	d.bound = false
	d.collection = ""
	d.req = restfile.New("", d.req.Protocol())
	d.clearTransient()
}

func (d *Draft) SetProtocol(protocol restfile.Protocol) error {
	if _, err := restfile.ParseProtocol(string(protocol)); err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "set protocol")
	}
	return d.edit(func(r *restfile.Request) error {
		*r = r.WithProtocol(protocol)
		return nil
	})
}

func (d *Draft) SetURL(url string) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.URL = url
		return nil
	})
}

func (d *Draft) SetBasicAuth(on bool) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.UseBasicAuth = on
		return nil
	})
}

func (d *Draft) SetUsername(username string) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.Username = username
		return nil
	})
}

func (d *Draft) SetPassword(password string) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.Password = password
		return nil
	})
}

func (d *Draft) SetBearerToken(token string) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.BearerToken = token
		return nil
	})
}

func (d *Draft) SetDescription(description string) error {
	return d.edit(func(r *restfile.Request) error {
		r.Common.Description = description
		return nil
	})
}

// SetQueryParams replaces the rows. An empty list becomes the single empty row.
func (d *Draft) SetQueryParams(params []restfile.QueryParam) error {
	return d.edit(func(r *restfile.Request) error {
		if len(params) == 0 {
			r.Common.QueryParams = restfile.DefaultQueryParams()
			return nil
		}
		r.Common.QueryParams = append([]restfile.QueryParam(nil), params...)
		return nil
	})
}

func (d *Draft) SetMethod(method string) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return errdef.New(errdef.CodeValidation, "method cannot be empty")
	}
	return d.editHTTP("method", func(p *restfile.HTTP) { p.Method = method })
}

func (d *Draft) SetBody(body string) error {
	return d.editHTTP("body", func(p *restfile.HTTP) { p.Body = body })
}

func (d *Draft) SetGraphQLQuery(query string) error {
	return d.editGraphQL("query", func(p *restfile.GraphQL) { p.Query = query })
}

func (d *Draft) SetGraphQLVariables(variables string) error {
	return d.editGraphQL("variables", func(p *restfile.GraphQL) { p.Variables = variables })
}

func (d *Draft) SetGRPCMessage(message string) error {
	return d.editGRPC("message", func(p *restfile.GRPC) { p.Message = message })
}

func (d *Draft) SetGRPCCallType(raw string) error {
	callType, err := restfile.ParseCallType(raw)
	if err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "set call type")
	}
	return d.editGRPC("call type", func(p *restfile.GRPC) { p.CallType = callType })
}

func (d *Draft) SetProtoContent(content string) error {
	return d.editGRPC("proto", func(p *restfile.GRPC) { p.ProtoContent = content })
}

func (d *Draft) SetGRPCService(service string) error {
	return d.editGRPC("service", func(p *restfile.GRPC) { p.Service = service })
}

func (d *Draft) SetGRPCMethod(method string) error {
	return d.editGRPC("method", func(p *restfile.GRPC) { p.Method = method })
}

// FormatBody pretty-prints the protocol's JSON field: the http body, the
// graphql variables or the grpc message. Blank input is left alone.
func (d *Draft) FormatBody() error {
	var current string
	switch p := d.req.Payload.(type) {
	case *restfile.HTTP:
		current = p.Body
	case *restfile.GraphQL:
		current = p.Variables
	case *restfile.GRPC:
		current = p.Message
	}
	if strings.TrimSpace(current) == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(current)), "", "  "); err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "format body")
	}
	formatted := buf.String()

	return d.edit(func(r *restfile.Request) error {
		switch p := r.Payload.(type) {
		case *restfile.HTTP:
			p.Body = formatted
		case *restfile.GraphQL:
			p.Variables = formatted
		case *restfile.GRPC:
			p.Message = formatted
		}
		return nil
	})
}

func (d *Draft) BeginDispatch() {
	d.Loading = true
	d.Response = nil
	d.Err = nil
}

func (d *Draft) FinishDispatch(resp *dispatch.Response, err error) {
	d.Loading = false
	d.Response = resp
	d.Err = err
}

func (d *Draft) clearTransient() {
	d.Loading = false
	d.Response = nil
	d.Err = nil
}

func (d *Draft) editHTTP(field string, fn func(*restfile.HTTP)) error {
	return d.edit(func(r *restfile.Request) error {
		p, ok := r.HTTP()
		if !ok {
			return mismatch(field, r.Protocol())
		}
		fn(p)
		return nil
	})
}

func (d *Draft) editGraphQL(field string, fn func(*restfile.GraphQL)) error {
	return d.edit(func(r *restfile.Request) error {
		p, ok := r.GraphQL()
		if !ok {
			return mismatch(field, r.Protocol())
		}
		fn(p)
		return nil
	})
}

func (d *Draft) editGRPC(field string, fn func(*restfile.GRPC)) error {
	return d.edit(func(r *restfile.Request) error {
		p, ok := r.GRPC()
		if !ok {
			return mismatch(field, r.Protocol())
		}
		fn(p)
		return nil
	})
}

// edit applies fn to a copy, writes it back when bound and only then keeps it.
func (d *Draft) edit(fn func(*restfile.Request) error) error {
	next := d.req.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if d.bound && d.saver != nil {
		if err := d.saver.SaveRequest(d.collection, next); err != nil {
			return err
		}
	}
	d.req = next
	return nil
}

func mismatch(field string, protocol restfile.Protocol) error {
	return errdef.New(errdef.CodeValidation, "%s cannot be set on a %s request", field, protocol)
}
