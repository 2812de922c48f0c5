package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"col"},
		Short:   "Manage collections",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List collections; the selected one is starred",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				names, err := a.ws.Collections()
				if err != nil {
					return err
				}
				current := a.ws.Context().Collection
				out := cmd.OutOrStdout()
				for _, name := range names {
					mark := " "
					if name == current {
						mark = "*"
					}
					fmt.Fprintf(out, "%s %s\n", mark, name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create an empty collection",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ws.CreateCollection(args[0])
			},
		},
		&cobra.Command{
			Use:   "rename <old> <new>",
			Short: "Rename a collection and its variable table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ws.RenameCollection(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:     "rm <name>",
			Aliases: []string{"remove"},
			Short:   "Delete a collection with its requests and variables",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ws.RemoveCollection(args[0])
			},
		},
		&cobra.Command{
			Use:   "use <name>",
			Short: "Select the collection later commands work in",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ws.SelectCollection(args[0])
			},
		},
	)
	return cmd
}
