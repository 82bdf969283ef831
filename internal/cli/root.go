// Package cli provides the distctl command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/iago/contact-distributor/internal/client"
	"github.com/iago/contact-distributor/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

type options struct {
	serverURL string
	token     string
	asJSON    bool

	api *client.Client
}

// NewRootCommand builds the distctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "distctl",
		Short: "Upload contact files and inspect distributions",
		Long: `distctl talks to the contact distributor API.

Upload a CSV or XLSX file to spread its contacts round-robin across the
active agents, then inspect past distributions and each agent's workload.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed loading .env files: %v\n", err)
			}
			if opts.token == "" {
				opts.token = os.Getenv("API_AUTH_TOKEN")
			}
			opts.api = client.New(opts.serverURL, opts.token)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "API base URL (default $DISTRIBUTOR_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token (default $API_AUTH_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(newUploadCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newShowCmd(opts))
	rootCmd.AddCommand(newAgentsCmd(opts))
	rootCmd.AddCommand(newAgentContactsCmd(opts))

	return rootCmd
}

// Execute runs distctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
