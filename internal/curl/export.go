// Package curl renders a saved request as a single curl command line.
package curl

import (
	"strings"

	"github.com/sreq-inc/solo/internal/dispatch"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

const (
	headerContentType = `-H "Content-Type: application/json"`
	bearerPrefix      = "Authorization: Bearer "
)

var bodyMethods = map[string]struct{}{"POST": {}, "PUT": {}, "PATCH": {}}

// Export builds the command from the same resolved URL and auth that a
// dispatch would use. The body is written verbatim with only `"` escaped.
// grpc requests have no curl form.
func Export(req restfile.Request, rows []vars.Variable) (string, error) {
	if req.Protocol() == restfile.ProtocolGRPC {
		return "", errdef.New(errdef.CodeValidation, "grpc requests cannot be exported as curl")
	}
	call, err := dispatch.Prepare(req, rows)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	switch call.Protocol {
	case restfile.ProtocolGraphQL:
		b.WriteString(`curl -X POST "` + call.URL + `" ` + headerContentType)
		writeAuth(&b, call.Auth)
		body, err := dispatch.GraphQLBody(call.Query, call.Variables)
		if err != nil {
			return "", err
		}
		b.WriteString(` -d "` + escape(string(body)) + `"`)
	default:
		b.WriteString(`curl -X ` + call.Method + ` "` + call.URL + `"`)
		writeAuth(&b, call.Auth)
		if _, ok := bodyMethods[call.Method]; ok && strings.TrimSpace(call.Body) != "" {
			b.WriteString(" " + headerContentType)
			b.WriteString(` -d "` + escape(call.Body) + `"`)
		}
	}
	return b.String(), nil
}

func writeAuth(b *strings.Builder, auth dispatch.Auth) {
	if auth.Basic {
		b.WriteString(` -u "` + auth.Username + ":" + auth.Password + `"`)
	}
	if auth.Bearer != "" {
		b.WriteString(` -H "` + bearerPrefix + auth.Bearer + `"`)
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
