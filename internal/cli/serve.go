package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/mcp"
	"github.com/derek809/mailtriage/internal/triage"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Expose drafting and learning to an AI client as MCP tools over stdio:
  triage_draft        Draft a reply for a message
  triage_record_sent  Record what was actually sent for a draft
  triage_similar      Find sent replies to similar messages
  triage_patterns     List the pattern library

Logs go to stderr; stdout carries only protocol messages.`,
		Example: `  mailtriage serve
  claude mcp add mailtriage -- mailtriage serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loop := a.loop(ctx)
			defer loop.Close()

			var similar triage.SimilarFinder
			if idx, err := a.replyIndex(ctx); err == nil {
				similar = idx
			}

			server := mcp.NewServer(a.pipeline(ctx), loop, similar, a.store, a.logger)
			a.logger.Info("mcp server started")

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}()

			select {
			case err := <-errCh:
				a.logger.Info("mcp server stopped")
				return err
			case <-ctx.Done():
				a.logger.Info("shutting down", zap.Error(context.Cause(ctx)))
				return nil
			}
		},
	}
}
