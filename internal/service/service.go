// Package service assembles the syncbridge process from settings: datastore,
// queues and engines per domain, telemetry, sync transports and the admin API.
package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/syncbridge/internal/api"
	"github.com/tphakala/syncbridge/internal/buildinfo"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/connector"
	"github.com/tphakala/syncbridge/internal/datastore"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
	"github.com/tphakala/syncbridge/internal/notify"
	"github.com/tphakala/syncbridge/internal/observability"
	"github.com/tphakala/syncbridge/internal/privacy"
	"github.com/tphakala/syncbridge/internal/queue"
	"github.com/tphakala/syncbridge/internal/syncevents"
	"github.com/tphakala/syncbridge/internal/telemetry"
)

const queueDepthInterval = 15 * time.Second

// Service is an assembled, not yet running syncbridge instance.
type Service struct {
	settings *conf.Settings
	log      logger.Logger

	store    *datastore.Manager
	metrics  *observability.Metrics
	history  migration.HistoryStore
	runners  []migration.Runner
	queues   map[string]queue.Queue
	notifier *notify.Notifier
	api      *api.Server
	mqtt     *syncevents.MQTTSubscriber
	kafka    *syncevents.KafkaConsumer

	httpOpts []httpclient.Option
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPOptions applies opts to every outbound HTTP client.
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(s *Service) {
		s.httpOpts = append(s.httpOpts, opts...)
	}
}

// New builds a service. Close must be called to release the database.
func New(settings *conf.Settings, info *buildinfo.Context, log logger.Logger, opts ...Option) (*Service, error) {
	s := &Service{settings: settings, log: log.Module("service")}
	for _, opt := range opts {
		opt(s)
	}

	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		s.metrics = m
		s.httpOpts = append([]httpclient.Option{httpclient.WithObserver(m.Transport)}, s.httpOpts...)
	}

	store, err := datastore.Open(settings.Database, log)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.history = datastore.NewHistoryStore(store.DB())

	if err := s.build(info, log); err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(info *buildinfo.Context, log logger.Logger) error {
	settings := s.settings

	notifier, err := notify.New(settings.Notify.URLs, settings.Notify.Timeout, log)
	if err != nil {
		return err
	}
	s.notifier = notifier

	tracker := s.telemetry(log)

	s.queues = make(map[string]queue.Queue, len(settings.Domains))
	for _, d := range settings.Domains {
		caps := connector.NewCapabilities(d, settings.HTTP, log, s.httpOpts...)
		q := s.queue(d.Name)
		s.queues[d.Name] = q
		engine, err := migration.New(engineConfig(settings, d), caps, migration.Dependencies{
			Mappings:  s.mappingStore(d, log),
			History:   s.history,
			Queue:     q,
			Telemetry: tracker,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		s.runners = append(s.runners, engine)
		s.log.Info("domain configured",
			logger.String("domain", d.Name),
			logger.String("source", privacy.RedactURL(d.SourceURL)),
			logger.String("target", privacy.RedactURL(d.TargetURL)),
			logger.Int("page_size", settings.EffectivePageSize(d)))
	}

	apiOpts := []api.ServerOption{
		api.WithLogger(log),
		api.WithHealthCheck(s.store),
		api.WithVersion(info.GetVersion()),
	}
	if s.metrics != nil {
		apiOpts = append(apiOpts, api.WithMetrics(s.metrics))
	}
	srv, err := api.New(settings, s.runners, s.history, apiOpts...)
	if err != nil {
		return err
	}
	s.api = srv

	s.syncTransports(log)
	return nil
}

// telemetry combines the configured event trackers.
func (s *Service) telemetry(log logger.Logger) migration.Telemetry {
	trackers := []migration.Telemetry{telemetry.NewLogTracker(log)}
	if s.metrics != nil {
		trackers = append(trackers, telemetry.NewMetricsTracker(s.metrics.Migration))
	}
	if s.settings.Sentry.Enabled {
		trackers = append(trackers, telemetry.NewSentryTracker(nil))
	}
	if s.notifier != nil {
		trackers = append(trackers, s.notifier)
	}
	return telemetry.Multi(trackers...)
}

// mappingStore returns the mapping store of one domain. Mappings never cross
// domains: each gets its own table scope or mapping service endpoint.
func (s *Service) mappingStore(d conf.DomainSettings, log logger.Logger) migration.MappingStore {
	cfg := s.settings.MappingStore
	var store migration.MappingStore
	if cfg.Backend == "http" {
		url := s.settings.EffectiveMappingURL(d)
		client := httpclient.New(httpclient.ConfigFrom(d.Name+"-mapping", url, cfg.Token, s.settings.HTTP), log, s.httpOpts...)
		store = connector.NewMappingClient(client)
	} else {
		store = datastore.NewMappingStore(s.store.DB(), d.Name)
	}
	if cfg.CacheTTL > 0 {
		store = datastore.NewCachedMappingStore(store, cfg.CacheTTL)
	}
	return store
}

// queue returns the task queue of one domain.
func (s *Service) queue(domain string) queue.Queue {
	opts := queue.Options{
		VisibilityTimeout: s.settings.Queue.VisibilityTimeout,
		MaxDeliveries:     s.settings.Queue.MaxDeliveries,
	}
	var q queue.Queue
	if s.settings.Queue.Backend == "database" {
		q = queue.NewDatabaseQueue(s.store.DB(), domain, opts)
	} else {
		q = queue.NewMemoryQueue(opts)
	}
	if s.metrics == nil {
		return q
	}
	return queue.Instrument(q, domain, s.metrics.Transport)
}

func (s *Service) syncTransports(log logger.Logger) {
	topics := make(map[string]string, len(s.settings.Domains))
	for _, d := range s.settings.Domains {
		topics[d.Name] = d.SyncTopic
	}
	routes := syncevents.RoutesFor(s.runners, topics)
	if len(routes) == 0 {
		return
	}
	if s.settings.Sync.MQTT.Enabled {
		s.mqtt = syncevents.NewMQTTSubscriber(s.settings.Sync.MQTT, s.settings.Main.Name, routes, log)
	}
	if s.settings.Sync.Kafka.Enabled {
		s.kafka = syncevents.NewKafkaConsumer(s.settings.Sync.Kafka, routes, log)
	}
}

func engineConfig(settings *conf.Settings, d conf.DomainSettings) migration.Config {
	return migration.Config{
		DomainType:          d.Name,
		PageSize:            settings.EffectivePageSize(d),
		EstimatePageSize:    settings.Engine.EstimatePageSize,
		CompletionThreshold: settings.Engine.CompletionThreshold,
		BusyDelay:           settings.Engine.BusyDelay,
		QuietDelay:          settings.Engine.QuietDelay,
		Workers:             settings.Engine.Workers,
		ReceiveBatch:        settings.Queue.ReceiveBatch,
		PollInterval:        settings.Queue.PollInterval,
		RetryBaseDelay:      settings.Engine.RetryBaseDelay,
		RetryMaxDelay:       settings.Engine.RetryMaxDelay,
		SelfOrigin:          settings.Sync.SelfOrigin,
	}
}

// Runners returns the engines in configuration order.
func (s *Service) Runners() []migration.Runner {
	return s.runners
}

// API returns the admin server.
func (s *Service) API() *api.Server {
	return s.api
}

// History returns the shared migration history store.
func (s *Service) History() migration.HistoryStore {
	return s.history
}

// Run starts the worker pools, sync transports, notifier and admin API and
// blocks until ctx is cancelled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range s.runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	g.Go(func() error { return s.api.Run(gctx) })

	if s.metrics != nil {
		g.Go(func() error {
			queue.SampleDepth(gctx, s.queues, queueDepthInterval, s.metrics.Transport)
			return nil
		})
	}
	if s.notifier != nil {
		g.Go(func() error {
			s.notifier.Run(gctx)
			return nil
		})
	}
	if s.mqtt != nil {
		g.Go(func() error {
			if err := s.mqtt.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			s.mqtt.Stop()
			return nil
		})
	}
	if s.kafka != nil {
		g.Go(func() error { return s.kafka.Run(gctx) })
	}

	s.log.Info("syncbridge running", logger.Int("domains", len(s.runners)))
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("service stopped with error", logger.Error(err))
		return err
	}
	s.log.Info("syncbridge stopped")
	return nil
}

// Close releases the database connection and flushes telemetry.
func (s *Service) Close() error {
	if s.settings.Sentry.Enabled {
		telemetry.Flush(2 * time.Second)
	}
	return s.store.Close()
}
