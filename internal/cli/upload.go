package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/iago/contact-distributor/internal/client"
	"github.com/spf13/cobra"
)

func newUploadCmd(opts *options) *cobra.Command {
	var (
		name           string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Distribute the contacts in a CSV or XLSX file",
		Long: `Upload a contact file. The first row must name the FirstName and Phone
columns (Notes is optional). Rows that fail validation are skipped and listed.

Examples:
  distctl upload leads.csv
  distctl upload march.xlsx --name "March leads"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}

			result, err := opts.api.Upload(cmd.Context(), client.UploadInput{
				Filename:       args[0],
				Data:           data,
				Name:           name,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, result)
			}
			fmt.Fprintf(out, "Distribution %s (%s)\n", result.Distribution.ID, result.Distribution.Name)
			fmt.Fprintln(out, result.Summary)
			for _, rowError := range result.RowErrors {
				fmt.Fprintf(out, "  row %d: %s\n", rowError.SourceRow, rowError.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "distribution name (default derived from the upload time)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reuse to retry an upload safely (default random)")
	return cmd
}
