package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/sreq-inc/solo/internal/draft"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
)

func newRequestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Manage the requests of a collection",
	}
	cmd.AddCommand(
		newRequestListCmd(a),
		newRequestNewCmd(a),
		newRequestShowCmd(a),
		newRequestSetCmd(a),
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Change the display name of a request",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				found, err := a.ws.Index().FindRequest(args[0], "")
				if err != nil {
					return err
				}
				return a.ws.RenameRequest(found.Collection, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"remove"},
			Short:   "Delete a request",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ws.RemoveRequest("", args[0])
			},
		},
	)
	return cmd
}

func newRequestListCmd(a *app) *cobra.Command {
	var collectionName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the requests of a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := targetCollection(a, collectionName)
			if err != nil {
				return err
			}
			entries, err := a.ws.Entries(name)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, entry := range entries {
				req, err := restfile.Decode(entry.FileName, entry.FileData)
				if err != nil {
					a.logger.Sugar().Warnw("skipping malformed request", "id", entry.FileName, "error", err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", req.ID, methodLabel(req), entry.Name(), req.Common.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&collectionName, "collection", "c", "", "collection to list (default: selected)")
	return cmd
}

func newRequestNewCmd(a *app) *cobra.Command {
	var (
		collectionName string
		protocol       string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Add a request with protocol defaults and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := targetCollection(a, collectionName)
			if err != nil {
				return err
			}
			p, err := restfile.ParseProtocol(protocol)
			if err != nil {
				return err
			}
			req, err := a.ws.CreateRequest(name, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), req.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&collectionName, "collection", "c", "", "target collection (default: selected)")
	cmd.Flags().StringVarP(&protocol, "protocol", "p", string(restfile.ProtocolHTTP), "http, graphql or grpc")
	return cmd
}

func newRequestShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a request with its placeholders resolved against the variable table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := a.ws.OpenRequest(args[0], "")
			if err != nil {
				return err
			}
			writeRequest(cmd.OutOrStdout(), a, found.DisplayName, found.Request)
			return nil
		},
	}
}

func writeRequest(w io.Writer, a *app, displayName string, req restfile.Request) {
	styles := newPreviewStyles(w)
	if displayName == "" {
		displayName = restfile.DefaultDisplayName
	}
	fmt.Fprintf(w, "%s  %s  (%s)\n", req.ID, displayName, a.ws.Context().Collection)
	fmt.Fprintf(w, "%s %s\n", methodLabel(req), renderPreview(styles, req.Common.URL, a.ws.Preview(req.Common.URL)))
	if req.Common.Description != "" {
		fmt.Fprintf(w, "# %s\n", req.Common.Description)
	}
	for _, p := range req.Common.QueryParams {
		if p.Key == "" && p.Value == "" {
			continue
		}
		state := ""
		if !p.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(w, "? %s=%s%s\n", p.Key, p.Value, state)
	}
	switch {
	case req.Common.UseBasicAuth:
		fmt.Fprintf(w, "auth: basic %s\n", req.Common.Username)
	case req.Common.BearerToken != "":
		fmt.Fprintln(w, "auth: bearer")
	}
	switch p := req.Payload.(type) {
	case *restfile.HTTP:
		if strings.TrimSpace(p.Body) != "" {
			fmt.Fprintf(w, "\n%s\n", p.Body)
		}
	case *restfile.GraphQL:
		fmt.Fprintf(w, "\n%s\n\nvariables: %s\n", p.Query, p.Variables)
	case *restfile.GRPC:
		fmt.Fprintf(w, "rpc: %s/%s (%s)\n\n%s\n", p.Service, p.Method, p.CallType, p.Message)
	}
}

func methodLabel(req restfile.Request) string {
	switch req.Protocol() {
	case restfile.ProtocolGraphQL:
		return "GQL"
	case restfile.ProtocolGRPC:
		return "GRPC"
	default:
		return req.Method()
	}
}

type requestEdits struct {
	protocol    string
	url         string
	method      string
	body        string
	bodyFile    string
	query       []string
	basic       bool
	username    string
	password    string
	bearer      string
	description string
	gqlQuery    string
	gqlVars     string
	service     string
	rpc         string
	message     string
	callType    string
	protoFile   string
	format      bool
}

func newRequestSetCmd(a *app) *cobra.Command {
	var e requestEdits
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Edit a saved request",
		Long: heredoc.Doc(`
			Edit a saved request. Only the flags given are changed and every
			change is saved as it is applied. Fields that do not belong to the
			request's protocol are rejected; switch with --protocol first.
		`),
		Example: heredoc.Doc(`
			solo request set request_01 --method POST --url '{{host}}/users' \
			  --query 'dry run=yes' --bearer '{{token}}' --body '{"name":"Sam"}' --format
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.ws.OpenRequest(args[0], ""); err != nil {
				return err
			}
			return applyEdits(a.ws.Draft(), cmd, e)
		},
	}
	f := cmd.Flags()
	f.StringVar(&e.protocol, "protocol", "", "switch protocol: http, graphql or grpc")
	f.StringVar(&e.url, "url", "", "request URL, may contain {{name}} placeholders")
	f.StringVar(&e.method, "method", "", "HTTP method")
	f.StringVar(&e.body, "body", "", "HTTP body")
	f.StringVar(&e.bodyFile, "body-file", "", "read the HTTP body from a file")
	f.StringArrayVar(&e.query, "query", nil, "query parameter key=value; repeat to add more, prefix with ! to disable")
	f.BoolVar(&e.basic, "basic", false, "use basic auth")
	f.StringVar(&e.username, "user", "", "basic auth username")
	f.StringVar(&e.password, "password", "", "basic auth password")
	f.StringVar(&e.bearer, "bearer", "", "bearer token")
	f.StringVar(&e.description, "description", "", "free text description")
	f.StringVar(&e.gqlQuery, "graphql-query", "", "GraphQL query text")
	f.StringVar(&e.gqlVars, "graphql-variables", "", "GraphQL variables as JSON")
	f.StringVar(&e.service, "grpc-service", "", "gRPC service name")
	f.StringVar(&e.rpc, "grpc-method", "", "gRPC method name")
	f.StringVar(&e.message, "grpc-message", "", "gRPC request message as JSON")
	f.StringVar(&e.callType, "grpc-call-type", "", "unary, server_streaming, client_streaming or bidirectional")
	f.StringVar(&e.protoFile, "proto-file", "", "read the .proto definition from a file")
	f.BoolVar(&e.format, "format", false, "pretty-print the JSON body after editing")
	return cmd
}

func applyEdits(d *draft.Draft, cmd *cobra.Command, e requestEdits) error {
	changed := cmd.Flags().Changed
	if changed("protocol") {
		p, err := restfile.ParseProtocol(e.protocol)
		if err != nil {
			return err
		}
		if err := d.SetProtocol(p); err != nil {
			return err
		}
	}

	if changed("body-file") {
		data, err := os.ReadFile(e.bodyFile)
		if err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "read body file")
		}
		e.body = string(data)
	}
	proto := ""
	if changed("proto-file") {
		data, err := os.ReadFile(e.protoFile)
		if err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "read proto file")
		}
		proto = string(data)
	}

	steps := []struct {
		flag  string
		apply func() error
	}{
		{"url", func() error { return d.SetURL(e.url) }},
		{"method", func() error { return d.SetMethod(e.method) }},
		{"body", func() error { return d.SetBody(e.body) }},
		{"body-file", func() error { return d.SetBody(e.body) }},
		{"query", func() error {
			params, err := parseQueryFlags(e.query)
			if err != nil {
				return err
			}
			return d.SetQueryParams(params)
		}},
		{"basic", func() error { return d.SetBasicAuth(e.basic) }},
		{"user", func() error { return d.SetUsername(e.username) }},
		{"password", func() error { return d.SetPassword(e.password) }},
		{"bearer", func() error { return d.SetBearerToken(e.bearer) }},
		{"description", func() error { return d.SetDescription(e.description) }},
		{"graphql-query", func() error { return d.SetGraphQLQuery(e.gqlQuery) }},
		{"graphql-variables", func() error { return d.SetGraphQLVariables(e.gqlVars) }},
		{"grpc-service", func() error { return d.SetGRPCService(e.service) }},
		{"grpc-method", func() error { return d.SetGRPCMethod(e.rpc) }},
		{"grpc-message", func() error { return d.SetGRPCMessage(e.message) }},
		{"grpc-call-type", func() error { return d.SetGRPCCallType(e.callType) }},
		{"proto-file", func() error { return d.SetProtoContent(proto) }},
	}
	for _, step := range steps {
		if !changed(step.flag) {
			continue
		}
		if err := step.apply(); err != nil {
			return errdef.Wrap(errdef.CodeOf(err), err, "--%s", step.flag)
		}
	}
	if e.format {
		return d.FormatBody()
	}
	return nil
}

// parseQueryFlags reads "key=value" rows; a leading "!" stores the row
// disabled.
func parseQueryFlags(raw []string) ([]restfile.QueryParam, error) {
	params := make([]restfile.QueryParam, 0, len(raw))
	for _, item := range raw {
		enabled := true
		if strings.HasPrefix(item, "!") {
			enabled = false
			item = item[1:]
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, errdef.New(errdef.CodeValidation, "query parameter %q must be key=value", item)
		}
		params = append(params, restfile.QueryParam{Key: key, Value: value, Enabled: enabled})
	}
	return params, nil
}
