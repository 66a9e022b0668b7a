package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/config"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

func newPlanCommand(a *app) *cobra.Command {
	var partSize string

	cmd := &cobra.Command{
		Use:   "plan <endpoint:object> <endpoint:object>",
		Short: "Show the part plan for a copy without writing anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRequest(args)
			if err != nil {
				return err
			}

			var topts []xfertypes.TransferOption
			if partSize != "" {
				size, err := config.PartSizeBytes(partSize)
				if err != nil {
					return err
				}
				topts = append(topts, xfer.WithTransferPartSize(size))
			}

			client, closer, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			p, err := client.Plan(cmd.Context(), req, topts...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PART\tSTART\tEND\tSIZE")
			for _, part := range p.Parts() {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", part.Number, part.Start, part.End, humanize.IBytes(uint64(part.Size())))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d parts, %s total, part size %s\n",
				p.Len(), humanize.IBytes(uint64(p.TotalSize())), humanize.IBytes(uint64(p.PartSize())))
			return nil
		},
	}

	cmd.Flags().StringVar(&partSize, "part-size", "", "Part size to plan with (default from config)")
	return cmd
}
