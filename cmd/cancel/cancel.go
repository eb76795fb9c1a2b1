package cancel

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/api/client"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/httpclient"
)

// Command creates the command that requests cancellation of a running migration.
func Command(settings *conf.Settings, opts ...httpclient.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <migration-id>",
		Short: "Request cancellation of a running migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(settings.API.URL, 0, nil, opts...)
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Cancellation of %s requested\n", args[0])
			return err
		},
	}
}
