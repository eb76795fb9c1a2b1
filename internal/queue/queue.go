// Package queue provides the durable, at-least-once task transport used by the
// migration engine: delayed sends, visibility timeouts, bounded redelivery and a
// dead-letter destination.
package queue

import (
	"context"
	"math"
	"time"

	"github.com/tphakala/syncbridge/internal/errors"
)

// Common errors returned by queue operations
var (
	ErrInvalidReceipt = errors.NewStd("receipt is unknown or its visibility timeout expired")
	ErrInvalidMessage = errors.NewStd("message has no kind")
)

// Message is one task on the queue.
type Message struct {
	ID          string
	MigrationID string // scoping key for purge, outstanding-work and dead-letter queries
	Kind        string
	Control     bool // control messages are not counted as outstanding work
	Body        []byte
	Deliveries  int // receives so far
	SentAt      time.Time
}

// Delivery is a received message plus the receipt used to ack or release it.
type Delivery struct {
	Message
	Receipt string
}

// Stats is a point-in-time view of queue depth.
type Stats struct {
	Visible  int
	Delayed  int
	InFlight int
	Dead     int
}

// Queue is an at-least-once task queue.
type Queue interface {
	// Send enqueues msg; it becomes visible after delay.
	Send(ctx context.Context, msg Message, delay time.Duration) error
	// Receive returns up to limit visible messages and hides them for the visibility timeout.
	// Messages that already reached the delivery limit are dead-lettered instead.
	Receive(ctx context.Context, limit int) ([]Delivery, error)
	// Ack deletes a delivered message.
	Ack(ctx context.Context, receipt string) error
	// Release makes a delivered message visible again after delay.
	Release(ctx context.Context, receipt string, delay time.Duration) error
	// Purge deletes visible messages of a migration and returns how many were removed.
	Purge(ctx context.Context, migrationID string) (int, error)
	// ProbablyHasMessages reports whether non-control messages of a migration are
	// visible, delayed or in flight.
	ProbablyHasMessages(ctx context.Context, migrationID string) (bool, error)
	// DeadLetterCount returns the exact number of dead letters of a migration.
	DeadLetterCount(ctx context.Context, migrationID string) (int64, error)
	// DeadLetters lists dead letters of a migration, or all of them when migrationID is empty.
	DeadLetters(ctx context.Context, migrationID string) ([]Message, error)
	// Redrive moves dead letters back onto the queue with their delivery count reset.
	Redrive(ctx context.Context, migrationID string) (int, error)
	// DeadLetter places msg directly on the dead-letter destination.
	DeadLetter(ctx context.Context, msg Message) error
	// Stats returns current depth counters.
	Stats(ctx context.Context) (Stats, error)
}

// Options configures queue backends.
type Options struct {
	VisibilityTimeout time.Duration
	MaxDeliveries     int
	Clock             func() time.Time
}

const (
	DefaultVisibilityTimeout = 2 * time.Minute
	DefaultMaxDeliveries     = 5
)

func (o Options) withDefaults() Options {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = DefaultMaxDeliveries
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// BackoffDelay returns the release delay before redelivery attempt n (1-based),
// doubling from base and capped at maxDelay.
func BackoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	backoff := float64(base) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && backoff > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(backoff)
}

func queueError(err error, op string) error {
	return errors.New(err).
		Component("queue").
		Category(errors.CategoryJobQueue).
		Context("operation", op).
		Build()
}
