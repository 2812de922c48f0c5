package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/sreq-inc/solo/internal/errdef"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "solo",
		Short: "Local-first API client",
		Long: heredoc.Doc(`
			solo keeps HTTP, GraphQL and gRPC requests in named collections on
			your machine. Each collection has its own variable table; {{name}}
			placeholders in URLs, query parameters and credentials are replaced
			before a request is sent or exported.

			Settings are read from settings.toml (or settings.json) in the
			directory named by SOLO_CONFIG_DIR.
		`),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipOpen"] == "true" {
				return nil
			}
			return a.open()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		newCollectionCmd(a),
		newRequestCmd(a),
		newVarCmd(a),
		newCurlCmd(a),
		newSendCmd(a),
		newSearchCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipOpen": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "solo %s (%s, %s)\n", version, commit, date)
		},
	}
}

// targetCollection is the --collection flag when set, otherwise the selected
// collection. Naming another collection selects it.
func targetCollection(a *app, flag string) (string, error) {
	current := a.ws.Context().Collection
	if flag == "" || flag == current {
		if current == "" {
			return "", errdef.New(errdef.CodeValidation, "no collection selected; run 'solo collection use <name>' or pass --collection")
		}
		return current, nil
	}
	if err := a.ws.SelectCollection(flag); err != nil {
		return "", err
	}
	return flag, nil
}
