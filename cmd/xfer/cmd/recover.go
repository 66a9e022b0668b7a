package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Abort sessions left open by an interrupted process",
		Long: `Recover reads the session journal and aborts every multipart session that
was opened but never committed or aborted, for example because the process
was killed mid-transfer. Sessions the destination no longer knows are
treated as already cleaned up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closer, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			results, err := client.Recover(cmd.Context())
			out := cmd.OutOrStdout()
			if len(results) == 0 && err == nil {
				fmt.Fprintln(out, "No pending sessions")
				return nil
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "failed   %s %s: %v\n", r.Record.TransferID, r.Record.Destination, r.Err)
					continue
				}
				fmt.Fprintf(out, "aborted  %s %s\n", r.Record.TransferID, r.Record.Destination)
			}
			return err
		},
	}
}
