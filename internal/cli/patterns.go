package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/derek809/mailtriage/internal/storage"
)

func newPatternsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Inspect and manage the pattern library",
	}

	cmd.AddCommand(newPatternsListCmd(opts))
	cmd.AddCommand(newPatternsImportCmd(opts))
	cmd.AddCommand(newPatternsSeedCmd(opts))

	return cmd
}

func newPatternsListCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List patterns with usage and success rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			patterns, err := a.store.ListPatterns(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), patterns)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBOOST\tUSED\tSUCCESS\tTEMPLATE\tKEYWORDS")
			for _, p := range patterns {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d%%\t%s\t%s\n",
					p.Name, p.ConfidenceBoost, p.UsageCount, p.SuccessRate,
					orNone(p.TemplateID), strings.Join(p.Keywords, ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// patternFile is the YAML shape accepted by 'patterns import'.
type patternFile struct {
	Patterns []struct {
		Name            string   `yaml:"name"`
		Keywords        []string `yaml:"keywords"`
		ConfidenceBoost int      `yaml:"confidence_boost"`
		Notes           string   `yaml:"notes"`
		TemplateID      string   `yaml:"template_id"`
	} `yaml:"patterns"`
}

func newPatternsImportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create or update patterns from a YAML file",
		Long: `Create or update patterns from YAML. Usage counts and success rates of
existing patterns are preserved; keywords, boost, notes and template are
replaced.

  patterns:
    - name: invoice_processing
      keywords: [invoice, amount due]
      confidence_boost: 10
      template_id: general_acknowledgment`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read pattern file: %w", err)
			}

			var file patternFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse pattern file: %w", err)
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			for _, in := range file.Patterns {
				p := storage.Pattern{
					Name:            in.Name,
					ConfidenceBoost: in.ConfidenceBoost,
					Notes:           in.Notes,
					TemplateID:      in.TemplateID,
				}
				for _, kw := range in.Keywords {
					p.Keywords = append(p.Keywords, strings.ToLower(strings.TrimSpace(kw)))
				}

				if existing, err := a.store.GetPattern(ctx, p.Name); err == nil {
					p.UsageCount = existing.UsageCount
					p.SuccessRate = existing.SuccessRate
				}
				if err := a.store.UpsertPattern(ctx, p); err != nil {
					return fmt.Errorf("pattern %q: %w", in.Name, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d patterns\n", len(file.Patterns))
			return nil
		},
	}

	return cmd
}

func newPatternsSeedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add any missing built-in patterns and templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := storage.SeedDefaults(cmd.Context(), a.sqlite)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d entries into %s\n", n, a.sqlite.Path())
			return nil
		},
	}
}
