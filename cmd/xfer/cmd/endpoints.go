package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEndpointsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List configured endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := make([]string, 0, len(a.cfg.Endpoints))
			for name := range a.cfg.Endpoints {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tLOCATION")
			for _, name := range names {
				ep := a.cfg.Endpoints[name]
				location := ep.Bucket
				if ep.Root != "" {
					location = ep.Root
				}
				if ep.Prefix != "" {
					location += "/" + ep.Prefix
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, ep.Type, location)
			}
			return w.Flush()
		},
	}
}
