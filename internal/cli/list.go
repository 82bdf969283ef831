package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List distributions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			distributions, err := opts.api.ListDistributions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list distributions: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, distributions)
			}
			if len(distributions) == 0 {
				fmt.Fprintln(out, "No distributions found.")
				return nil
			}

			fmt.Fprintf(out, "Distributions (%d):\n\n", len(distributions))
			for _, distribution := range distributions {
				fmt.Fprintf(out, "- %s  %s  [%s]  %d contacts, %d agents, %d row errors  %s\n",
					distribution.ID,
					distribution.Name,
					distribution.Status,
					distribution.TotalContacts,
					distribution.TotalAgents,
					distribution.RowErrorCount,
					distribution.CreatedAt.Format(time.RFC3339),
				)
			}
			return nil
		},
	}
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <distribution-id>",
		Short: "Show a distribution and its contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := opts.api.GetDistribution(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get distribution: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, detail)
			}
			distribution := detail.Distribution
			fmt.Fprintf(out, "%s  %s  [%s]\n", distribution.ID, distribution.Name, distribution.Status)
			fmt.Fprintf(out, "Created: %s\n", distribution.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Contacts: %d  Agents: %d  Row errors: %d\n\n",
				distribution.TotalContacts, distribution.TotalAgents, distribution.RowErrorCount)
			for _, contact := range detail.Contacts {
				fmt.Fprintf(out, "- %s  %s  -> %s\n", contact.FirstName, contact.Phone, contact.AgentName)
			}
			return nil
		},
	}
}
