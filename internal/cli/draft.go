package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/derek809/mailtriage/internal/triage"
)

func newDraftCmd(opts *globalOptions) *cobra.Command {
	var (
		msg         triage.Message
		date        string
		instruction string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft a reply for one message",
		Long: `Match a message against the pattern library, score confidence, fill the
pattern's template and record the draft. The printed draft id is what
'mailtriage sent' expects once the reply has gone out.`,
		Example: `  mailtriage draft --from ana@vendor.com --name "Ana Ruiz" \
    --subject "W9 request" --body "Could you send your W9 and wiring instructions?"
  mailtriage draft --from bob@client.com --subject "Sync" --instruction "offer Thursday" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				t, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", date, err)
				}
				msg.Date = t
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			d, err := a.pipeline(ctx).Draft(ctx, msg, instruction)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			printDraft(cmd.OutOrStdout(), d)
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.SenderEmail, "from", "", "Sender email address (required)")
	cmd.Flags().StringVar(&msg.SenderName, "name", "", "Sender display name")
	cmd.Flags().StringVarP(&msg.Subject, "subject", "s", "", "Message subject")
	cmd.Flags().StringVarP(&msg.Body, "body", "b", "", "Message body")
	cmd.Flags().StringVar(&date, "date", "", "Message date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&instruction, "instruction", "i", "", "Extra instruction for the draft")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

// draftID is the history id, or a marker for a draft the store never saw.
func draftID(d *triage.Draft) string {
	if !d.Recorded {
		return "(not recorded)"
	}
	return d.ID
}

func printDraft(w io.Writer, d *triage.Draft) {
	pattern := d.PatternName()
	if pattern == "" {
		pattern = "(none)"
	}

	fmt.Fprintf(w, "Draft:      %s\n", draftID(d))
	fmt.Fprintf(w, "Pattern:    %s\n", pattern)
	if d.Match != nil {
		fmt.Fprintf(w, "Keywords:   %s\n", strings.Join(d.Match.MatchedKeywords, ", "))
	}
	fmt.Fprintf(w, "Confidence: %d (%s)\n", d.Confidence, d.Policy.Description())
	if d.TemplateID != "" {
		fmt.Fprintf(w, "Template:   %s\n", d.TemplateID)
	}
	if len(d.Attachments) > 0 {
		fmt.Fprintf(w, "Attach:     %s\n", strings.Join(d.Attachments, ", "))
	}
	if len(d.MissingVariables) > 0 {
		fmt.Fprintf(w, "Missing:    %s\n", strings.Join(d.MissingVariables, ", "))
	}
	if len(d.Similar) > 0 {
		fmt.Fprintf(w, "Similar:    %d past replies\n", len(d.Similar))
	}
	if d.Text != "" {
		fmt.Fprintf(w, "\n%s\n", d.Text)
	}
}

// batchResult is the JSON shape of one batch entry.
type batchResult struct {
	Index int           `json:"index"`
	Draft *triage.Draft `json:"draft,omitempty"`
	Error string        `json:"error,omitempty"`
}

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var (
		pace       time.Duration
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Draft replies for a YAML list of messages, one at a time",
		Long: `Read a YAML list of {message, instruction} items and draft each in order,
waiting triage.pace between items. A failing item is reported and the
batch continues. Use "-" to read from stdin.`,
		Example: `  mailtriage batch inbox.yaml
  mailtriage batch inbox.yaml --pace 2s --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			var extra []triage.Option
			if cmd.Flags().Changed("pace") {
				extra = append(extra, triage.WithPace(pace))
			}

			ctx := cmd.Context()
			results, err := a.pipeline(ctx, extra...).DraftBatch(ctx, items)

			out := make([]batchResult, 0, len(results))
			failed := 0
			for _, r := range results {
				br := batchResult{Index: r.Index, Draft: r.Draft}
				if r.Err != nil {
					br.Error = r.Err.Error()
					failed++
				}
				out = append(out, br)
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				if werr := writeJSON(w, out); werr != nil {
					return werr
				}
			} else {
				for _, r := range out {
					if r.Error != "" {
						fmt.Fprintf(w, "[%d] error: %s\n", r.Index, r.Error)
						continue
					}
					fmt.Fprintf(w, "[%d] %s  %-24s %3d  %s\n",
						r.Index, draftID(r.Draft), orNone(r.Draft.PatternName()), r.Draft.Confidence, r.Draft.Policy)
				}
				fmt.Fprintf(w, "\n%d drafted, %d failed\n", len(out)-failed, failed)
			}

			if err != nil {
				return fmt.Errorf("batch stopped after %d of %d items: %w", len(results), len(items), err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&pace, "pace", 0, "Delay between items (overrides triage.pace)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func readBatch(stdin io.Reader, path string) ([]triage.Item, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var items []triage.Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	return items, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
