package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
)

// Runner is the type-erased view of an Engine used by the admin API, the CLI and
// the sync transports.
type Runner interface {
	DomainType() string
	// StartRaw starts a migration with a JSON-encoded filter.
	StartRaw(ctx context.Context, filter []byte) (string, error)
	Cancel(ctx context.Context, migrationID string) error
	// RepairRaw repairs the entity identified by the text form of its key.
	RepairRaw(ctx context.Context, key string) (Outcome, error)
	HandleSyncPayload(ctx context.Context, payload []byte) error
	DeadLetters(ctx context.Context, migrationID string) ([]DeadLetter, error)
	Redrive(ctx context.Context, migrationID string) (int, error)
	Run(ctx context.Context) error
	Drain(ctx context.Context) (int, error)
}

var _ Runner = (*Engine[any, any, any, any])(nil)

// DeadLetter is an operator view of a dead-lettered task.
type DeadLetter struct {
	ID          string    `json:"id"`
	MigrationID string    `json:"migrationId,omitempty"`
	Kind        string    `json:"kind"`
	Deliveries  int       `json:"deliveries"`
	SentAt      time.Time `json:"sentAt"`
	Payload     any       `json:"payload,omitempty"`
}

// StartRaw decodes filter as JSON and starts a migration. An empty body is the
// zero filter.
func (e *Engine[F, K, E, R]) StartRaw(ctx context.Context, filter []byte) (string, error) {
	var f F
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &f); err != nil {
			return "", errors.New(fmt.Errorf("decode %s filter: %w", e.cfg.DomainType, err)).
				Component("engine").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return e.Start(ctx, f)
}

// RepairRaw parses key and repairs that entity.
func (e *Engine[F, K, E, R]) RepairRaw(ctx context.Context, key string) (Outcome, error) {
	if e.caps.ParseKey == nil {
		return "", errors.Newf("domain %s cannot parse keys", e.cfg.DomainType).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}
	k, err := e.caps.ParseKey(key)
	if err != nil {
		return "", errors.New(fmt.Errorf("parse key %q: %w", key, err)).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
	}
	return e.Repair(ctx, k)
}

// DeadLetters lists the dead letters of a migration, or all of the domain's when
// migrationID is empty.
func (e *Engine[F, K, E, R]) DeadLetters(ctx context.Context, migrationID string) ([]DeadLetter, error) {
	msgs, err := e.queue.DeadLetters(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, DeadLetter{
			ID:          m.ID,
			MigrationID: m.MigrationID,
			Kind:        m.Kind,
			Deliveries:  m.Deliveries,
			SentAt:      m.SentAt,
			Payload:     decodePayload(m.Body),
		})
	}
	return out, nil
}

// Redrive moves dead letters back onto the queue for another round of deliveries.
func (e *Engine[F, K, E, R]) Redrive(ctx context.Context, migrationID string) (int, error) {
	n, err := e.queue.Redrive(ctx, migrationID)
	if err != nil {
		return 0, err
	}
	e.log.Info("dead letters redriven", logger.String("migration_id", migrationID), logger.Int("count", n))
	return n, nil
}
