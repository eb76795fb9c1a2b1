package start

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/api/client"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/httpclient"
)

// Command creates the command that starts a migration on a running instance.
func Command(settings *conf.Settings, opts ...httpclient.Option) *cobra.Command {
	var filter map[string]string

	cmd := &cobra.Command{
		Use:   "start <domain>",
		Short: "Start a migration of one domain",
		Long: `Start a migration of one domain on a running syncbridge instance.

Examples:
  # Migrate every record of the visits domain
  syncbridge start visits

  # Migrate one site only
  syncbridge start visits --filter siteId=NTH --filter fromDate=2020-01-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(settings.API.URL, 0, nil, opts...)
			id, err := c.Start(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Migration %s started\n", id)
			return err
		},
	}

	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Filter field as key=value, repeatable")
	return cmd
}
