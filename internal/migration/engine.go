package migration

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

// Default engine tuning.
const (
	DefaultWorkers             = 8
	DefaultPageSize            = 1000
	DefaultEstimatePageSize    = 1
	DefaultCompletionThreshold = 10
	DefaultBusyDelay           = 10 * time.Second
	DefaultQuietDelay          = 1 * time.Second
	DefaultPollInterval        = 250 * time.Millisecond
	DefaultRetryBaseDelay      = 1 * time.Second
	DefaultRetryMaxDelay       = time.Minute
	DefaultSelfOrigin          = "syncbridge"
)

// RepairOrigin is the provenance marker of operator-triggered repairs.
const RepairOrigin = "repair"

// Config tunes one engine.
type Config struct {
	DomainType          string
	PageSize            int
	EstimatePageSize    int
	CompletionThreshold int
	BusyDelay           time.Duration
	QuietDelay          time.Duration
	Workers             int
	ReceiveBatch        int
	PollInterval        time.Duration
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	SelfOrigin          string
}

// DefaultConfig returns the default configuration for a domain.
func DefaultConfig(domainType string) Config {
	return Config{
		DomainType:          domainType,
		PageSize:            DefaultPageSize,
		EstimatePageSize:    DefaultEstimatePageSize,
		CompletionThreshold: DefaultCompletionThreshold,
		BusyDelay:           DefaultBusyDelay,
		QuietDelay:          DefaultQuietDelay,
		Workers:             DefaultWorkers,
		ReceiveBatch:        1,
		PollInterval:        DefaultPollInterval,
		RetryBaseDelay:      DefaultRetryBaseDelay,
		RetryMaxDelay:       DefaultRetryMaxDelay,
		SelfOrigin:          DefaultSelfOrigin,
	}
}

// Dependencies are the collaborators shared by engines.
type Dependencies struct {
	Mappings  MappingStore
	History   HistoryStore
	Queue     queue.Queue
	Telemetry Telemetry
	Logger    logger.Logger
	Clock     func() time.Time
}

// Engine runs migrations and synchronisation for one domain.
type Engine[F, K, E, R any] struct {
	cfg       Config
	caps      Capabilities[F, K, E, R]
	mappings  MappingStore
	history   HistoryStore
	queue     queue.Queue
	telemetry Telemetry
	log       logger.Logger
	now       func() time.Time
}

// New validates the configuration and capabilities and builds an engine.
func New[F, K, E, R any](cfg Config, caps Capabilities[F, K, E, R], deps Dependencies) (*Engine[F, K, E, R], error) {
	var missing []string
	if cfg.DomainType == "" {
		missing = append(missing, "domain type")
	}
	if caps.Source == nil {
		missing = append(missing, "source")
	}
	if caps.Target == nil {
		missing = append(missing, "target")
	}
	if caps.Transform == nil {
		missing = append(missing, "transform")
	}
	if caps.LegacyID == nil {
		missing = append(missing, "legacy id function")
	}
	if deps.Mappings == nil {
		missing = append(missing, "mapping store")
	}
	if deps.History == nil {
		missing = append(missing, "history store")
	}
	if deps.Queue == nil {
		missing = append(missing, "queue")
	}
	if len(missing) > 0 {
		return nil, errors.Newf("migration engine is missing %v", missing).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}

	cfg = cfg.withDefaults()
	if deps.Telemetry == nil {
		deps.Telemetry = nopTelemetry{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Engine[F, K, E, R]{
		cfg:       cfg,
		caps:      caps,
		mappings:  deps.Mappings,
		history:   deps.History,
		queue:     deps.Queue,
		telemetry: deps.Telemetry,
		log:       deps.Logger.Module("engine").With(logger.String("domain", cfg.DomainType)),
		now:       deps.Clock,
	}, nil
}

// withDefaults fills unset counts. Delays are kept as given so that tests can run
// the status loops without waiting.
func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.EstimatePageSize <= 0 {
		c.EstimatePageSize = DefaultEstimatePageSize
	}
	if c.CompletionThreshold <= 0 {
		c.CompletionThreshold = DefaultCompletionThreshold
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ReceiveBatch <= 0 {
		c.ReceiveBatch = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SelfOrigin == "" {
		c.SelfOrigin = DefaultSelfOrigin
	}
	return c
}

// DomainType returns the domain served by the engine.
func (e *Engine[F, K, E, R]) DomainType() string {
	return e.cfg.DomainType
}

// Run pulls tasks with a fixed pool of workers until ctx is cancelled. Handlers
// already started run to completion before Run returns.
func (e *Engine[F, K, E, R]) Run(ctx context.Context) error {
	e.log.Info("starting workers", logger.Int("workers", e.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i := range e.cfg.Workers {
		g.Go(func() error {
			e.work(gctx, i)
			return nil
		})
	}
	err := g.Wait()
	e.log.Info("workers stopped")
	return err
}

func (e *Engine[F, K, E, R]) work(ctx context.Context, worker int) {
	log := e.log.With(logger.Int("worker", worker))
	for ctx.Err() == nil {
		deliveries, err := e.queue.Receive(ctx, e.cfg.ReceiveBatch)
		if err != nil {
			log.Warn("receive failed", logger.Error(err))
		}
		if len(deliveries) == 0 {
			if !sleep(ctx, e.cfg.PollInterval) {
				return
			}
			continue
		}
		for _, d := range deliveries {
			// Handlers finish even when shutdown begins mid-batch.
			e.process(context.WithoutCancel(ctx), d)
		}
	}
}

// Drain processes visible messages on the calling goroutine until none remain
// visible, and returns how many were processed.
func (e *Engine[F, K, E, R]) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		deliveries, err := e.queue.Receive(ctx, e.cfg.ReceiveBatch)
		if err != nil {
			return processed, err
		}
		if len(deliveries) == 0 {
			return processed, nil
		}
		for _, d := range deliveries {
			e.process(ctx, d)
			processed++
		}
	}
}

// process handles one delivery and acknowledges it, or releases it for
// redelivery with backoff when the handler fails.
func (e *Engine[F, K, E, R]) process(ctx context.Context, d queue.Delivery) {
	start := time.Now()
	err := e.handle(ctx, d.Message)
	e.telemetry.Track(ctx, Event{
		Name:        EventTaskProcessed,
		MigrationID: d.MigrationID,
		DomainType:  e.cfg.DomainType,
		Err:         err,
		Duration:    time.Since(start),
		Attributes:  map[string]string{"kind": d.Kind},
	})

	if err != nil {
		delay := queue.BackoffDelay(e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay, d.Deliveries)
		e.log.Warn("task failed, releasing for redelivery",
			logger.String("kind", d.Kind),
			logger.String("migration_id", d.MigrationID),
			logger.Int("deliveries", d.Deliveries),
			logger.Duration("delay", delay),
			logger.Error(err))
		if rerr := e.queue.Release(ctx, d.Receipt, delay); rerr != nil {
			e.log.Warn("release failed", logger.String("message_id", d.ID), logger.Error(rerr))
		}
		return
	}
	if aerr := e.queue.Ack(ctx, d.Receipt); aerr != nil {
		e.log.Warn("ack failed", logger.String("message_id", d.ID), logger.Error(aerr))
	}
}

func (e *Engine[F, K, E, R]) handle(ctx context.Context, msg queue.Message) error {
	switch TaskKind(msg.Kind) {
	case TaskDivide:
		return e.divide(ctx, msg)
	case TaskProcessPage:
		return e.processPage(ctx, msg)
	case TaskProcessEntity:
		return e.processEntity(ctx, msg)
	case TaskStatusCheck:
		return e.poll(ctx, msg, completionLoop)
	case TaskCancel:
		return e.poll(ctx, msg, cancellationLoop)
	case TaskRetryMapping:
		return e.retryMapping(ctx, msg)
	default:
		return errors.New(fmt.Errorf("unknown task kind %q", msg.Kind)).
			Component("engine").
			Category(errors.CategoryValidation).
			Context("message_id", msg.ID).
			Build()
	}
}

// send encodes mc as a task of kind and enqueues it after delay.
func send[T any](ctx context.Context, q queue.Queue, kind TaskKind, mc Context[T], delay time.Duration) error {
	msg, err := encodeTask(kind, mc)
	if err != nil {
		return err
	}
	if err := q.Send(ctx, msg, delay); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
