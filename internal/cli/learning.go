package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/storage"
)

func newLearningCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Inspect what the learning loop has picked up",
	}

	cmd.AddCommand(newLearningStatusCmd(opts))
	return cmd
}

// learningStatus is the JSON shape of 'learning status'.
type learningStatus struct {
	Drafts    int                          `json:"drafts"`
	Pending   int                          `json:"pending"`
	Outcomes  map[storage.Outcome]int      `json:"outcomes"`
	Patterns  []storage.Pattern            `json:"patterns"`
	Templates []storage.Template           `json:"templates"`
	Phrases   []storage.WritingStylePhrase `json:"phrases"`
}

func newLearningStatusCmd(opts *globalOptions) *cobra.Command {
	var (
		phraseLimit int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show success rates, outcome distribution and learned phrases",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			status := learningStatus{Outcomes: map[storage.Outcome]int{}}

			drafts, err := a.store.ListDrafts(ctx, 0)
			if err != nil {
				return err
			}
			status.Drafts = len(drafts)
			for _, d := range drafts {
				if d.Scored() {
					status.Outcomes[d.Outcome]++
				} else {
					status.Pending++
				}
			}

			if status.Patterns, err = a.store.ListPatterns(ctx); err != nil {
				return err
			}
			if status.Templates, err = a.store.ListTemplates(ctx); err != nil {
				return err
			}
			phrases, err := a.store.ListPhrases(ctx)
			if err != nil {
				a.logger.Debug("phrases unavailable", zap.Error(err))
			}
			if phraseLimit > 0 && len(phrases) > phraseLimit {
				phrases = phrases[:phraseLimit]
			}
			status.Phrases = phrases

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			return printLearningStatus(cmd.OutOrStdout(), status)
		},
	}

	cmd.Flags().IntVar(&phraseLimit, "phrases", 10, "Number of top phrases to show")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func printLearningStatus(w io.Writer, s learningStatus) error {
	fmt.Fprintf(w, "Drafts: %d (%d awaiting send)\n", s.Drafts, s.Pending)
	for _, o := range []storage.Outcome{
		storage.OutcomeSuccess,
		storage.OutcomeGood,
		storage.OutcomeNeedsWork,
		storage.OutcomeFailure,
		storage.OutcomeMajorFailure,
	} {
		fmt.Fprintf(w, "  %-14s %d\n", o, s.Outcomes[o])
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tUSED\tSUCCESS")
	for _, p := range s.Patterns {
		fmt.Fprintf(tw, "%s\t%d\t%d%%\n", p.Name, p.UsageCount, p.SuccessRate)
	}
	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintln(tw, "TEMPLATE\tUSED\tSUCCESS")
	for _, t := range s.Templates {
		fmt.Fprintf(tw, "%s\t%d\t%d%%\n", t.ID, t.UsageCount, t.SuccessRate)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Phrases) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Phrases:")
	for _, p := range s.Phrases {
		fmt.Fprintf(w, "  %3dx  %-32s [%s]\n", p.Frequency, p.Phrase, p.Context)
	}
	return nil
}
