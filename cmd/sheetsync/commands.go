package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/ledger"
	"github.com/sheetsync/sheetsync/internal/logging"
	"github.com/sheetsync/sheetsync/internal/services"
)

const initTimeout = 30 * time.Second

type rootOptions struct {
	ConfigDir string
	EnvFile   string
	Once      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sheetsync",
		Short: "Sync ledger accounts and transactions into spreadsheets",
		Long: `sheetsync copies ledger data into spreadsheet tabs on a schedule,
in response to ledger change events, or on demand through its HTTP API.

Without a subcommand it serves; --once (or --sync) runs every sheet a
single time and exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, opts.Once, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", "config", "configuration directory")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before configuration")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run every sheet once and exit")
	cmd.Flags().BoolVar(&opts.Once, "sync", false, "alias for --once")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run schedules, event triggers and the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, false, cmd.ErrOrStderr())
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every sheet once and exit",
		Long: `Run every configured sheet a single time, in configuration order.
The exit status is non-zero when no sheets are configured or any sheet fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, true, cmd.ErrOrStderr())
		},
	}
	// Accepted for compatibility with older invocations.
	cmd.Flags().Bool("once", true, "run once (always true for this command)")
	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and sheet definitions without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return validate(cfg, cmd.OutOrStdout())
		},
	}
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	return config.Load(opts.ConfigDir)
}

func validate(cfg *config.Config, out io.Writer) error {
	syncTargets, err := cfg.Ledger.SyncTargets()
	if err != nil {
		return err
	}
	targets, err := ledger.NewTargets(syncTargets)
	if err != nil {
		return err
	}
	units, warnings, err := cfg.LoadUnits(targets)
	if err != nil {
		return err
	}

	for _, w := range append(cfg.Warnings, warnings...) {
		fmt.Fprintln(out, "warning:", w)
	}
	for _, u := range units {
		fmt.Fprintf(out, "%s\t%s\t%s!%s\t%s\n", u.ID, u.Source.Type, u.Target.SpreadsheetID, u.Target.Tab, u.Mode)
	}
	fmt.Fprintf(out, "%d sheet(s) OK\n", len(units))
	return nil
}

func execute(ctx context.Context, opts *rootOptions, once bool, stderr io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Sync.Once = once

	logger, err := logging.Initialize(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		if lerr := logging.Shutdown(); lerr != nil {
			fmt.Fprintln(stderr, "Failed to flush logs:", lerr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := services.NewManager(cfg, services.Options{Once: cfg.Sync.Once}, logger)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	err = mgr.Init(initCtx)
	cancel()
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}

	var runErr error
	if cfg.Sync.Once {
		runErr = mgr.RunOnce(ctx)
		if errors.Is(runErr, services.ErrNoUnits) {
			logger.Error("No sheets configured; nothing to run", "units_path", cfg.Sync.UnitsPath)
		}
	} else {
		runErr = mgr.Start(ctx)
		logger.Info("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if serr := mgr.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("Shutdown finished with errors", "error", serr)
	}
	return runErr
}
