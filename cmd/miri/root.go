package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maumercado/miri-go/internal/config"
	"github.com/maumercado/miri-go/internal/logger"
	"github.com/maumercado/miri-go/internal/metrics"
	"github.com/maumercado/miri-go/pkg/client"
)

// app holds what every command needs once the root has loaded config.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgFile     string
	url         string
	output      string
	logLevel    string
	metricsAddr string

	cfg     *config.Config
	client  *client.Client
	metrics *http.Server
}

// run builds the command tree, executes args and releases what the command
// started.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{out: out, errOut: errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "miri",
		Short: "Command-line client for the Miri agent service",
		Long: `miri sends prompts to a Miri agent and manages it through the admin API.

Settings come from config.yaml (., ./config or ~/.miri), MIRI_* environment
variables and the flags below, in increasing order of precedence:

  MIRI_SERVER_URL=http://localhost:8080 MIRI_SERVER_KEY=secret miri prompt "hello"`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./config.yaml or ~/.miri/config.yaml)")
	pf.StringVar(&a.url, "url", "", "agent service URL (overrides server.url)")
	pf.StringVarP(&a.output, "output", "o", "", "output format: text, json or yaml")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		a.promptCmd(),
		a.streamCmd(),
		a.sessionCmd(),
		a.adminCmd(),
		a.filesCmd(),
		a.chatCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.Server.URL = a.url
	}
	if a.output != "" {
		cfg.Output = a.output
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.InitWithWriter(logger.ServiceCLI, cfg.LogLevel, true, cmd.ErrOrStderr())

	opts, err := clientOptions(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		srv, err := startMetricsServer(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		a.metrics = srv
		opts = append(opts, client.WithObserver(metrics.NewObserver()))
	}

	a.client, err = client.New(cfg.Server.URL, opts...)
	return err
}

func (a *app) close() {
	if a.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		// The version needs no config or client.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "miri %s\n", version)
		},
	}
}
