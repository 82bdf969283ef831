package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the active agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := opts.api.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, agents)
			}
			if len(agents) == 0 {
				fmt.Fprintln(out, "No active agents.")
				return nil
			}
			for _, agent := range agents {
				fmt.Fprintf(out, "- %s  %s\n", agent.ID, agent.Name)
			}
			return nil
		},
	}
}

func newAgentContactsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "agent-contacts <agent-id>",
		Short: "List every contact assigned to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := opts.api.ListAgentContacts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list agent contacts: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, contacts)
			}
			if len(contacts) == 0 {
				fmt.Fprintf(out, "No contacts assigned to %s.\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Contacts for %s (%d):\n\n", args[0], len(contacts))
			for _, contact := range contacts {
				fmt.Fprintf(out, "- %s  %s  %s  (distribution %s)\n",
					contact.FirstName, contact.Phone, contact.Notes, contact.DistributionID)
			}
			return nil
		},
	}
}
