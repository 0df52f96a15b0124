package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and search draft history",
	}

	cmd.AddCommand(newHistoryListCmd(opts))
	cmd.AddCommand(newHistoryShowCmd(opts))
	cmd.AddCommand(newHistorySearchCmd(opts))

	return cmd
}

func newHistoryListCmd(opts *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent drafts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			drafts, err := a.store.ListDrafts(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), drafts)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tPATTERN\tCONF\tOUTCOME\tEDIT")
			for _, d := range drafts {
				outcome, edit := "pending", "-"
				if d.Scored() {
					outcome = string(d.Outcome)
					if d.EditPercentage != nil {
						edit = fmt.Sprintf("%.2f%%", *d.EditPercentage)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					d.ID, d.CreatedAt.Local().Format("2006-01-02 15:04"),
					orNone(d.MatchedPattern), d.Confidence, outcome, edit)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of drafts (0 for all)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func newHistoryShowCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show DRAFT_ID",
		Short: "Show one draft and, once sent, how it was edited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.GetDraft(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, rec)
			}
			printRecord(cmd, rec)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func printRecord(cmd *cobra.Command, rec *storage.DraftRecord) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Draft:      %s\n", rec.ID)
	fmt.Fprintf(w, "Created:    %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Pattern:    %s\n", orNone(rec.MatchedPattern))
	fmt.Fprintf(w, "Template:   %s\n", orNone(rec.TemplateID))
	if rec.SenderEmail != "" {
		fmt.Fprintf(w, "Sender:     %s\n", rec.SenderEmail)
	}
	fmt.Fprintf(w, "Confidence: %d\n", rec.Confidence)

	if rec.Scored() {
		fmt.Fprintf(w, "Outcome:    %s\n", rec.Outcome)
		if rec.EditPercentage != nil {
			fmt.Fprintf(w, "Edited:     %.2f%%\n", *rec.EditPercentage)
		}
	} else {
		fmt.Fprintln(w, "Outcome:    pending")
	}

	fmt.Fprintf(w, "\n--- draft\n%s\n", rec.DraftText)
	if rec.FinalText != nil {
		fmt.Fprintf(w, "\n--- sent\n%s\n", *rec.FinalText)
	}
}

func newHistorySearchCmd(opts *globalOptions) *cobra.Command {
	var (
		pattern    string
		outcomes   []string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find sent replies to similar messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			idx, err := a.replyIndex(cmd.Context())
			if err != nil {
				return err
			}

			matches, err := idx.Similar(search.Query{
				Text:     strings.Join(args, " "),
				Pattern:  pattern,
				Outcomes: outcomes,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(w, "No similar replies found")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(w, "%s  %.3f  %s  %s\n", m.DraftID, m.Score, orNone(m.Pattern), m.Outcome)
				fmt.Fprintf(w, "    %s\n", firstLine(m.FinalText))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Only replies drafted for this pattern")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Only these outcomes (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
