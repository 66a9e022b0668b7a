package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

func newSessionsCommand(a *app) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List journaled multipart sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closer, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			records, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			var shown []xfertypes.SessionRecord
			for _, r := range records {
				if pendingOnly && r.State != xfertypes.SessionOpen {
					continue
				}
				shown = append(shown, r)
			}
			if len(shown) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSFER\tSTATE\tSOURCE\tDESTINATION\tSIZE\tUPDATED")
			for _, r := range shown {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.TransferID, r.State, r.Source, r.Destination,
					humanize.IBytes(uint64(r.Size)), r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only show sessions still open")
	return cmd
}
