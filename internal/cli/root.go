// Package cli holds the datimsync command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"datimsync/pkg/config"
)

// BuildInfo is stamped by the linker in main.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	dataDir    string
	logLevel   string
	period     string
	offline    bool
	dataCheck  bool
	testMode   bool

	getenv func(string) string
}

// NewRootCmd builds the command tree. getenv is os.Getenv outside tests.
func NewRootCmd(info BuildInfo, getenv func(string) string) *cobra.Command {
	opts := &options{getenv: getenv}
	root := &cobra.Command{
		Use:   "datimsync",
		Short: "Synchronize DATIM DHIS2 metadata with OCL",
		Long: `datimsync exports indicator metadata from DHIS2, compares it with the
OCL repositories that mirror it and submits the difference as an OCL
bulk import.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file path (or DATIMSYNC_CONFIG)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "data directory for exports, scripts and state")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.period, "period", "", "reporting period, e.g. FY18")
	pf.BoolVar(&opts.offline, "offline", false, "replay exports saved in the data directory")
	pf.BoolVar(&opts.dataCheck, "data-check-only", false, "stop after the diff; never build or submit an import")
	pf.BoolVar(&opts.testMode, "test-mode", false, "build the import script but do not submit it")

	root.AddCommand(
		newRunCmd(opts, info),
		newServeCmd(opts, info),
		newDiffCmd(),
		newImapCmd(opts),
		newConfigCmd(opts, info),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(info BuildInfo) int {
	root := NewRootCmd(info, os.Getenv)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// load builds the effective config and applies flag overrides on top. Flags
// beat env, which beats the file.
func (o *options) load(cmd *cobra.Command) (config.EffectiveConfigResult, error) {
	eff, err := config.LoadEffectiveConfig(o.configPath, cmd.Flag("config").Changed, o.getenv)
	if err != nil {
		return eff, err
	}
	cfg := eff.Config
	flagUsed := false
	if o.dataDir != "" {
		cfg.Sync.DataDir = o.dataDir
		// paths derived from the data dir follow it
		cfg.Cache.Path = ""
		cfg.Telemetry.Dir = ""
		flagUsed = true
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		flagUsed = true
	}
	if o.period != "" {
		cfg.Sync.Period = o.period
		flagUsed = true
	}
	if o.offline {
		cfg.Sync.RunOffline = true
		flagUsed = true
	}
	if o.dataCheck {
		cfg.Sync.DataCheckOnly = true
		flagUsed = true
	}
	if o.testMode {
		cfg.Import.TestMode = true
		flagUsed = true
	}
	if flagUsed {
		cfg.ApplyDefaults()
		eff.Source += "+flags"
	}
	return eff, nil
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
