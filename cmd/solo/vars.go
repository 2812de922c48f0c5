package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/vars"
)

func newVarCmd(a *app) *cobra.Command {
	var collectionName string
	cmd := &cobra.Command{
		Use:     "var",
		Aliases: []string{"vars"},
		Short:   "Manage the variable table of a collection",
	}
	cmd.PersistentFlags().StringVarP(&collectionName, "collection", "c", "", "collection to work in (default: selected)")

	var disabled bool
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Add a variable or update the first row with that key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := targetCollection(a, collectionName); err != nil {
				return err
			}
			return setVariable(a.ws.Table(), args[0], args[1], !disabled)
		},
	}
	set.Flags().BoolVar(&disabled, "disabled", false, "store the row disabled")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List variables in table order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := targetCollection(a, collectionName); err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, row := range a.ws.Table().Rows() {
					if row.Key == "" && row.Value == "" {
						continue
					}
					state := "on"
					if !row.Enabled {
						state = "off"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Key, row.Value, state)
				}
				return tw.Flush()
			},
		},
		set,
		&cobra.Command{
			Use:     "rm <key>",
			Aliases: []string{"remove"},
			Short:   "Remove every row with key",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := targetCollection(a, collectionName); err != nil {
					return err
				}
				return removeVariable(a.ws.Table(), args[0])
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Append the variables of a .env file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := targetCollection(a, collectionName); err != nil {
					return err
				}
				n, err := a.ws.ImportDotEnv(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d variables\n", n)
				return nil
			},
		},
	)
	return cmd
}

func setVariable(table *vars.Table, key, value string, enabled bool) error {
	rows := table.Rows()
	for i, row := range rows {
		if row.Key == key {
			rows[i].Value = value
			rows[i].Enabled = enabled
			return table.Replace(rows)
		}
	}
	kept := rows[:0]
	for _, row := range rows {
		if row != (vars.Variable{Enabled: true}) {
			kept = append(kept, row)
		}
	}
	return table.Replace(append(kept, vars.Variable{Key: key, Value: value, Enabled: enabled}))
}

func removeVariable(table *vars.Table, key string) error {
	rows := table.Rows()
	kept := rows[:0]
	for _, row := range rows {
		if row.Key != key {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(rows) {
		return errdef.New(errdef.CodeNotFound, "variable %q not found", key)
	}
	return table.Replace(kept)
}
