package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newContactsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"contact"},
		Short:   "Inspect learned contacts",
	}

	cmd.AddCommand(newContactsShowCmd(opts))
	return cmd
}

func newContactsShowCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show EMAIL",
		Short: "Show what has been learned about a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.store.GetContact(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, c)
			}

			tone := c.PreferredTone
			if tone == "" {
				tone = "(not learned yet)"
			}
			fmt.Fprintf(w, "Email:        %s\n", c.Email)
			fmt.Fprintf(w, "Name:         %s\n", c.Name)
			if c.RelationshipType != "" {
				fmt.Fprintf(w, "Relationship: %s\n", c.RelationshipType)
			}
			fmt.Fprintf(w, "Tone:         %s\n", tone)
			fmt.Fprintf(w, "Interactions: %d\n", c.InteractionCount)
			if !c.LastInteraction.IsZero() {
				fmt.Fprintf(w, "Last seen:    %s\n", c.LastInteraction.Format("2006-01-02 15:04"))
			}
			if len(c.CommonTopics) > 0 {
				fmt.Fprintf(w, "Topics:       %s\n", strings.Join(c.CommonTopics, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
