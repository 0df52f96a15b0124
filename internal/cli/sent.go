package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSentCmd(opts *globalOptions) *cobra.Command {
	var (
		text       string
		file       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sent DRAFT_ID",
		Short: "Record the reply that was actually sent for a draft",
		Long: `Compare the sent text with the draft, classify the outcome and update
pattern and template success rates, writing-style phrases and the
sender's contact record. A draft can be recorded only once.

The sent text comes from --text, --file, or stdin when neither is given.`,
		Example: `  mailtriage sent 3f2c... --text "Hi Ana, W9 attached."
  pbpaste | mailtriage sent 3f2c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			finalText, err := readSentText(cmd, text, file)
			if err != nil {
				return err
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			loop := a.loop(ctx)
			res, err := loop.RecordSent(ctx, args[0], finalText)
			loop.Close()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, res)
			}

			fmt.Fprintf(w, "Draft:   %s\n", res.DraftID)
			fmt.Fprintf(w, "Edited:  %.2f%%\n", res.EditPercentage)
			fmt.Fprintf(w, "Outcome: %s\n", res.Outcome)
			if res.PatternName != "" {
				fmt.Fprintf(w, "Pattern: %s\n", res.PatternName)
			}
			for _, warning := range res.Warnings {
				fmt.Fprintf(w, "Warning: %s\n", warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Sent reply text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read sent reply text from a file")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

func readSentText(cmd *cobra.Command, text, file string) (string, error) {
	switch {
	case cmd.Flags().Changed("text"):
		return text, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read sent text: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read sent text from stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
}
