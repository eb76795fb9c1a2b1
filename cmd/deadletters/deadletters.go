package deadletters

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/api/client"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/httpclient"
)

// Command creates the dead-letters command with its list and redrive subcommands.
func Command(settings *conf.Settings, opts ...httpclient.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect and redrive tasks that exhausted their deliveries",
	}
	cmd.AddCommand(listCommand(settings, opts), redriveCommand(settings, opts))
	return cmd
}

func listCommand(settings *conf.Settings, opts []httpclient.Option) *cobra.Command {
	var migrationID string
	cmd := &cobra.Command{
		Use:   "list <domain>",
		Short: "List dead letters of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(settings.API.URL, 0, nil, opts...)
			letters, err := c.DeadLetters(cmd.Context(), args[0], migrationID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMIGRATION\tKIND\tDELIVERIES\tSENT")
			for _, d := range letters {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					d.ID, d.MigrationID, d.Kind, d.Deliveries, d.SentAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&migrationID, "migration-id", "", "Only dead letters of this migration")
	return cmd
}

func redriveCommand(settings *conf.Settings, opts []httpclient.Option) *cobra.Command {
	var migrationID string
	cmd := &cobra.Command{
		Use:   "redrive <domain>",
		Short: "Move dead letters of a domain back onto its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(settings.API.URL, 0, nil, opts...)
			n, err := c.Redrive(cmd.Context(), args[0], migrationID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Redrove %d dead letters of %s\n", n, args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&migrationID, "migration-id", "", "Only dead letters of this migration")
	return cmd
}
