package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/config"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// app holds the state shared by every command of one invocation.
type app struct {
	configFile  string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "xfer",
		Short: "Chunked, all-or-nothing object copies between storage endpoints",
		Long: `xfer copies objects between storage endpoints (S3, MinIO, Storj, GCS,
local filesystems) in fixed-size parts. The destination object appears only
after every part has been acknowledged; on failure the destination session
is aborted and nothing is left behind.

Endpoints are named in a configuration file (xfer.yaml) and objects are
addressed as endpoint:object.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to config file (default ./xfer.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newCopyCommand(a),
		newPlanCommand(a),
		newSessionsCommand(a),
		newRecoverCommand(a),
		newEndpointsCommand(a),
	)
	for _, c := range root.Commands() {
		a.exportMetrics(c)
	}
	return root
}

// exportMetrics makes c write the metrics file when it returns, whether or not
// it failed. cobra skips post-run hooks after an error.
func (a *app) exportMetrics(c *cobra.Command) {
	run := c.RunE
	if run == nil {
		return
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if werr := a.writeMetrics(); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	a.registry = prometheus.NewRegistry()
	return nil
}

func (a *app) writeMetrics() error {
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// client builds a client from the loaded configuration. The returned closer
// must be called when the command is done.
func (a *app) client(ctx context.Context) (*xfer.Client, io.Closer, error) {
	opts, closers, err := a.cfg.ClientOptions(ctx, a.logger, a.registry)
	if err != nil {
		_ = closers.Close()
		return nil, nil, err
	}

	c, err := xfer.New(opts...)
	if err != nil {
		_ = closers.Close()
		return nil, nil, err
	}
	return c, closers, nil
}

// parseRef splits endpoint:object.
func parseRef(s string) (xfertypes.ObjectRef, error) {
	name, object, ok := strings.Cut(s, ":")
	if !ok || name == "" || object == "" {
		return xfertypes.ObjectRef{}, fmt.Errorf("invalid reference %q: want endpoint:object", s)
	}
	return xfertypes.ObjectRef{Endpoint: strings.ToLower(name), Object: object}, nil
}

func parseRequest(args []string) (xfertypes.TransferRequest, error) {
	src, err := parseRef(args[0])
	if err != nil {
		return xfertypes.TransferRequest{}, err
	}
	dst, err := parseRef(args[1])
	if err != nil {
		return xfertypes.TransferRequest{}, err
	}
	return xfertypes.TransferRequest{Source: src, Destination: dst}, nil
}
