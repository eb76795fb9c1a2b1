package history

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/api/client"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/migration"
)

// Command creates the command that lists migration history.
func Command(settings *conf.Settings, opts ...httpclient.Option) *cobra.Command {
	var (
		q      migration.HistoryQuery
		status string
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List migrations and their progress",
		Long: `List migrations recorded by a running syncbridge instance.

Examples:
  # Latest migrations of every domain
  syncbridge history

  # Completed visit migrations as YAML
  syncbridge history --domain visits --status completed --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			if status != "" {
				q.Status = migration.Status(strings.ToUpper(status))
				if !q.Status.Valid() {
					return errors.Newf("unknown status %q", status).
						Component("cli").
						Category(errors.CategoryValidation).
						Build()
				}
			}

			c := client.New(settings.API.URL, 0, nil, opts...)
			rows, err := c.History(cmd.Context(), q)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, rows)
		},
	}

	cmd.Flags().StringVar(&q.MigrationID, "id", "", "Show one migration")
	cmd.Flags().StringVar(&q.DomainType, "domain", "", "Only migrations of this domain")
	cmd.Flags().StringVar(&status, "status", "", "Only migrations in this status")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum number of rows, 0 for the server default")
	cmd.Flags().StringVarP(&output, "output", "o", string(formatTable), "Output format: table, json or yaml")
	return cmd
}
