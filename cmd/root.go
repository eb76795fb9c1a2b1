// Package cmd wires the syncbridge command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/syncbridge/cmd/cancel"
	"github.com/tphakala/syncbridge/cmd/deadletters"
	"github.com/tphakala/syncbridge/cmd/history"
	"github.com/tphakala/syncbridge/cmd/repair"
	"github.com/tphakala/syncbridge/cmd/serve"
	"github.com/tphakala/syncbridge/cmd/start"
	"github.com/tphakala/syncbridge/internal/buildinfo"
	"github.com/tphakala/syncbridge/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "syncbridge",
		Short:        "Migrate and synchronise records from a legacy system into a new one",
		Version:      info.String(),
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, v, &configFile); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		serve.Command(settings, info),
		start.Command(settings),
		history.Command(settings),
		cancel.Command(settings),
		repair.Command(settings),
		deadletters.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(v, configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(configFile, "config", "", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("api", "", "Base URL of the admin API used by client commands")

	if err := v.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := v.BindPFlag("api.url", flags.Lookup("api")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
