package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/derek809/mailtriage/internal/template"
)

func newTemplatesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Inspect response templates",
	}

	cmd.AddCommand(newTemplatesListCmd(opts))
	return cmd
}

func newTemplatesListCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		showBody   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List templates with usage and success rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			templates, err := a.store.ListTemplates(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, templates)
			}

			if showBody {
				for _, t := range templates {
					fmt.Fprintf(w, "== %s (%s)\n%s\n\n", t.ID, t.Name, t.Body)
				}
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSED\tSUCCESS\tVARIABLES")
			for _, t := range templates {
				vars := t.Variables
				if len(vars) == 0 {
					vars = template.Variables(t.Body)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d%%\t%s\n", t.ID, t.UsageCount, t.SuccessRate, strings.Join(vars, ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&showBody, "body", false, "Print template bodies")
	return cmd
}
