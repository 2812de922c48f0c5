package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sreq-inc/solo/internal/bundle"
	"github.com/sreq-inc/solo/internal/errdef"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <collection>",
		Short: "Write a collection and its variables as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bundle.Export(a.ws.Index(), a.store, args[0])
			if err != nil {
				return err
			}
			data, err := bundle.Encode(b)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errdef.Wrap(errdef.CodeFilesystem, err, "write %s", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create a collection from a YAML bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errdef.Wrap(errdef.CodeFilesystem, err, "read %s", args[0])
			}
			b, err := bundle.Decode(data)
			if err != nil {
				return err
			}
			created, err := bundle.Import(a.ws.Index(), a.store, b, bundle.ImportOptions{Name: name})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d requests into %s\n", len(b.Requests), created)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name (default: the name in the bundle)")
	return cmd
}
