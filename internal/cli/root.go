/*
Package cli implements the mailtriage command tree.

Every command loads configuration (file, then MAILTRIAGE_* environment,
then --db and --log-level flags), opens the SQLite store behind the
built-in fallback library, and closes everything on exit.
*/
package cli

import (
	"github.com/spf13/cobra"

	"github.com/derek809/mailtriage/internal/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "mailtriage",
		Short: "Pattern-matched reply drafting that learns from what you send",
		Long: `mailtriage matches inbound messages against a library of patterns,
scores how safe an automatic reply would be, fills a response template,
and learns from the difference between the draft and what was actually sent.

Data lives in ~/.mailtriage/ (SQLite database, optional reply index).
Configuration is read from ~/.mailtriage/config.yaml and MAILTRIAGE_*
environment variables.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ~/.mailtriage/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides storage.db_path)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newDraftCmd(opts))
	cmd.AddCommand(newBatchCmd(opts))
	cmd.AddCommand(newSentCmd(opts))
	cmd.AddCommand(newPatternsCmd(opts))
	cmd.AddCommand(newTemplatesCmd(opts))
	cmd.AddCommand(newContactsCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newLearningCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
