package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/config"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

type copyOptions struct {
	partSize    string
	concurrency int
	contentType string
	metadata    map[string]string
	retries     int
	noProgress  bool
}

func newCopyCommand(a *app) *cobra.Command {
	o := &copyOptions{}

	cmd := &cobra.Command{
		Use:   "copy <endpoint:object> <endpoint:object>",
		Short: "Copy an object from one endpoint to another",
		Long: `Copy reads the source in parts and writes them to a multipart session on
the destination. The destination object is committed only when every part
has been acknowledged; any failure aborts the session.`,
		Example: `  xfer copy archive:backups/db.tar scratch:db.tar
  xfer copy --part-size 64MiB --concurrency 8 local:video.mp4 archive:media/video.mp4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd, a, o, args)
		},
	}

	cmd.Flags().StringVar(&o.partSize, "part-size", "", "Part size for this copy, e.g. 64MiB (default from config)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Parts in flight (default from config)")
	cmd.Flags().StringVar(&o.contentType, "content-type", "", "Content type recorded on the destination")
	cmd.Flags().StringToStringVar(&o.metadata, "metadata", nil, "Metadata stored with the destination object (key=value)")
	cmd.Flags().IntVar(&o.retries, "retries", 0, "Attempts per part before the copy is aborted (default from config)")
	cmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "Do not draw a progress bar")
	return cmd
}

func runCopy(cmd *cobra.Command, a *app, o *copyOptions, args []string) error {
	req, err := parseRequest(args)
	if err != nil {
		return err
	}

	var topts []xfertypes.TransferOption
	if o.partSize != "" {
		size, err := config.PartSizeBytes(o.partSize)
		if err != nil {
			return err
		}
		topts = append(topts, xfer.WithTransferPartSize(size))
	}
	if o.concurrency > 0 {
		topts = append(topts, xfer.WithTransferConcurrency(o.concurrency))
	}
	if o.contentType != "" {
		topts = append(topts, xfer.WithContentType(o.contentType))
	}
	if len(o.metadata) > 0 {
		topts = append(topts, xfer.WithMetadata(o.metadata))
	}

	if o.retries > 0 {
		a.cfg.Retry.MaxAttempts = o.retries
	}

	ctx := cmd.Context()
	client, closer, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	var bar *barTracker
	if !o.noProgress {
		bar = newBarTracker(cmd.ErrOrStderr(), req.Destination.String())
		topts = append(topts, xfer.WithProgress(bar))
	}

	out, err := client.Transfer(ctx, req, topts...)
	if bar != nil {
		bar.Wait()
	}
	if err != nil {
		if out.CleanupErr != nil {
			a.logger.Error("destination session may need manual cleanup",
				"transfer_id", out.TransferID,
				"destination", req.Destination.String(),
				"error", out.CleanupErr)
		}
		return fmt.Errorf("transfer %s aborted: %w", out.TransferID, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "committed %s:%s (%s in %d parts) transfer=%s\n",
		req.Destination.Endpoint, out.Object, humanize.IBytes(uint64(out.Size)), out.Parts, out.TransferID)
	return nil
}
