package syncevents

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

const (
	defaultKafkaAttempts   = 5
	defaultKafkaRetryBase  = time.Second
	defaultKafkaRetryMax   = 30 * time.Second
	defaultKafkaFetchPause = time.Second
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads the sync topic of every route with a consumer group.
// An offset is committed once its handler succeeds. A message that still fails
// after the configured attempts, or that cannot be decoded, is logged and
// committed so the partition keeps moving.
type KafkaConsumer struct {
	routes    []Route
	log       logger.Logger
	attempts  int
	retryBase time.Duration
	retryMax  time.Duration

	newReader func(topic string) messageReader
}

// NewKafkaConsumer creates a consumer for routes.
func NewKafkaConsumer(settings conf.KafkaSettings, routes []Route, log logger.Logger) *KafkaConsumer {
	kl := log.Module("syncevents.kafka")
	return &KafkaConsumer{
		routes:    routes,
		log:       kl,
		attempts:  defaultKafkaAttempts,
		retryBase: defaultKafkaRetryBase,
		retryMax:  defaultKafkaRetryMax,
		newReader: func(topic string) messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     settings.Brokers,
				GroupID:     settings.GroupID,
				Topic:       topic,
				StartOffset: kafka.FirstOffset,
				ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
					kl.Warn(fmt.Sprintf(msg, args...), logger.String("topic", topic))
				}),
			})
		},
	}
}

// Run consumes every route until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, route := range c.routes {
		reader := c.newReader(route.Topic)
		g.Go(func() error {
			defer func() {
				if err := reader.Close(); err != nil {
					c.log.Warn("closing kafka reader", logger.String("topic", route.Topic), logger.Error(err))
				}
			}()
			return c.consume(ctx, reader, route)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *KafkaConsumer) consume(ctx context.Context, reader messageReader, route Route) error {
	log := c.log.With(logger.String("topic", route.Topic), logger.String("domain", route.Domain))
	log.Info("kafka consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("fetching kafka message", logger.Error(err))
			if !pause(ctx, defaultKafkaFetchPause) {
				return ctx.Err()
			}
			continue
		}

		if err := c.handle(ctx, route, msg, log); err != nil {
			return err
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("committing kafka offset", logger.Int64("offset", msg.Offset), logger.Error(err))
		}
	}
}

// handle retries transient handler failures with backoff. It returns an error
// only when ctx ends before the message is settled.
func (c *KafkaConsumer) handle(ctx context.Context, route Route, msg kafka.Message, log logger.Logger) error {
	for attempt := 1; ; attempt++ {
		err := route.Handler.HandleSyncPayload(ctx, msg.Value)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.IsCategory(err, errors.CategoryValidation) || attempt >= c.attempts {
			log.Warn("skipping sync event",
				logger.Int("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Int("attempts", attempt),
				logger.Error(err))
			return nil
		}
		if !pause(ctx, queue.BackoffDelay(c.retryBase, c.retryMax, attempt)) {
			return ctx.Err()
		}
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
