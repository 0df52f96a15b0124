package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/derek809/mailtriage/internal/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigInitCmd(opts))
	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after defaults, the config file, MAILTRIAGE_*
environment variables and command-line overrides have been applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg  *config.Config
				path string
				err  error
			)
			if strict {
				path = opts.configPath
				if path == "" {
					if path, err = config.GetDefaultConfigPath(); err != nil {
						return err
					}
				}
				cfg, err = config.LoadStrict(path)
			} else {
				cfg, path, err = opts.loadConfig()
			}
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", path)
			_, err = w.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the config file does not exist")
	return cmd
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				p, err := config.GetDefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := config.Save(config.NewConfig(), path, zap.NewNop()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
