package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sreq-inc/solo/internal/errdef"
)

func newCurlCmd(a *app) *cobra.Command {
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "curl <id>",
		Short: "Print a request as a curl command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.ws.OpenRequest(args[0], ""); err != nil {
				return err
			}
			line, err := a.ws.ExportCurl()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			if copyOut {
				if err := a.copy(line); err != nil {
					return errdef.Wrap(errdef.CodeUnsupported, err, "copy to clipboard")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyOut, "copy", false, "also copy the command to the clipboard")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var showHeaders bool
	cmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Send a request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.ws.OpenRequest(args[0], ""); err != nil {
				return err
			}
			resp, err := a.ws.Dispatch(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			styles := newPreviewStyles(out)
			status := styles.resolved
			if resp.StatusCode >= 400 {
				status = styles.unresolved
			}
			fmt.Fprintf(out, "%s %s\n", status.Render(resp.Status), styles.muted.Render(resp.Duration.String()))
			if showHeaders {
				keys := make([]string, 0, len(resp.Headers))
				for k := range resp.Headers {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					for _, v := range resp.Headers[k] {
						fmt.Fprintf(out, "%s: %s\n", k, v)
					}
				}
			}
			if len(resp.Body) > 0 {
				fmt.Fprintf(out, "\n%s\n", resp.Body)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showHeaders, "include", "i", false, "print response headers")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-find requests across every collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := a.ws.Search(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, hit := range hits {
				fmt.Fprintf(out, "%s\t%s/%s\n", hit.RequestID, hit.Collection, hit.DisplayName)
			}
			return nil
		},
	}
}
