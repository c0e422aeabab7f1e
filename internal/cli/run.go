package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"datimsync/internal/app"
	"datimsync/pkg/config"
	"datimsync/pkg/logger"
	"datimsync/pkg/state/shutdown"
	"datimsync/pkg/syncer"
)

func newRunCmd(opts *options, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), eff, info, func(ctx context.Context, a *app.App) error {
				rep, err := a.RunOnce(ctx)
				if err != nil {
					return err
				}
				if rep.Status == syncer.StatusUnknown {
					fmt.Fprintf(out(cmd), "import submitted, status unknown (run %s)\n", rep.RunID)
				}
				return nil
			})
		},
	}
}

func newServeCmd(opts *options, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run syncs on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), eff, info, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

// withApp starts the logger, builds the app and always shuts it down.
func withApp(parent context.Context, eff config.EffectiveConfigResult, info BuildInfo, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.File)
	defer logger.Sync()
	logger.Info("effective_config_loaded", "source", eff.Source, "path", eff.Path, "data_dir", eff.Config.Sync.DataDir)

	a, err := app.New(eff, info.Version, info.Commit, info.BuildDate)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	ctx, cancel := shutdown.SetupSignalHandler(parent)
	defer cancel()

	runErr := fn(ctx, a)
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
