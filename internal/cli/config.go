package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"datimsync/pkg/config"
	"datimsync/pkg/config/banner"
)

func newConfigCmd(opts *options, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a config file with every default filled in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg := &config.Config{}
			cfg.ApplyDefaults()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var asYAML bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if asYAML {
				redacted := *eff.Config
				if redacted.DHIS2.Password != "" {
					redacted.DHIS2.Password = "***"
				}
				if redacted.OCL.Token != "" {
					redacted.OCL.Token = "***"
				}
				b, err := yaml.Marshal(&redacted)
				if err != nil {
					return err
				}
				_, err = out(cmd).Write(b)
				return err
			}
			banner.PrintWithEff(out(cmd), eff, info.Version)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML instead of a summary")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := config.ValidateConfig(eff.Config); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "configuration OK (%s)\n", eff.Source)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, validateCmd)
	return cmd
}
