package serve

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/syncbridge/internal/buildinfo"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/service"
	"github.com/tphakala/syncbridge/internal/telemetry"
)

// Command creates the command that runs the migration engines, sync consumers
// and admin API until interrupted.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migration workers, sync consumers and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, info)
		},
	}
}

func run(ctx context.Context, settings *conf.Settings, info *buildinfo.Context) error {
	log, err := newLogger(settings)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	log.Info("starting syncbridge",
		logger.String("version", info.GetVersion()),
		logger.String("build_date", info.GetBuildDate()),
		logger.Int("domains", len(settings.Domains)))

	if err := telemetry.InitSentry(settings, info.GetVersion(), nil); err != nil {
		log.Error("sentry disabled", logger.Error(err))
	}

	svc, err := service.New(settings, info, log)
	if err != nil {
		log.Error("failed to assemble service", logger.Error(err))
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}

func newLogger(settings *conf.Settings) (*logger.CentralLogger, error) {
	level := settings.Log.Level
	if settings.Debug {
		level = "debug"
	}
	return logger.NewCentralLogger(logger.Config{
		Level:    level,
		Format:   settings.Log.Format,
		Timezone: settings.Log.Timezone,
		Console:  settings.Log.Console,
		File:     logger.FileConfig(settings.Log.File),
	})
}
