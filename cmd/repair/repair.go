package repair

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/api/client"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/httpclient"
)

// Command creates the command that synchronises a single legacy entity.
func Command(settings *conf.Settings, opts ...httpclient.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <domain> <legacy-id>",
		Short: "Migrate one entity outside of a migration run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(settings.API.URL, 0, nil, opts...)
			outcome, err := c.Repair(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], outcome)
			return err
		},
	}
}
