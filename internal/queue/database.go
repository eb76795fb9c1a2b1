package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tphakala/syncbridge/internal/datastore/entities"
)

// DatabaseQueue is a durable Queue stored in the queue_messages table. Several
// named queues share the table. Receivers claim rows with a conditional update on
// the delivery count and receipt, so a message is handed to one receiver at a time
// even across processes.
type DatabaseQueue struct {
	db   *gorm.DB
	name string
	opts Options
}

// NewDatabaseQueue creates a queue named name on db. The schema must already exist.
func NewDatabaseQueue(db *gorm.DB, name string, opts Options) *DatabaseQueue {
	return &DatabaseQueue{db: db, name: name, opts: opts.withDefaults()}
}

func (q *DatabaseQueue) scope(ctx context.Context) *gorm.DB {
	return q.db.WithContext(ctx).Model(&entities.QueueMessage{}).Where("queue_name = ?", q.name)
}

func (q *DatabaseQueue) Send(ctx context.Context, msg Message, delay time.Duration) error {
	if msg.Kind == "" {
		return queueError(ErrInvalidMessage, "send")
	}
	now := q.opts.Clock()
	row := q.toRow(msg, now)
	row.VisibleAt = now.Add(max(delay, 0))
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return queueError(fmt.Errorf("insert message: %w", err), "send")
	}
	return nil
}

func (q *DatabaseQueue) Receive(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	now := q.opts.Clock()

	var rows []entities.QueueMessage
	err := q.scope(ctx).
		Where("dead = ? AND visible_at <= ?", false, now).
		Order("visible_at, sent_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, queueError(fmt.Errorf("select visible messages: %w", err), "receive")
	}

	var out []Delivery
	for i := range rows {
		row := &rows[i]
		claim := q.db.WithContext(ctx).Model(&entities.QueueMessage{}).
			Where("id = ? AND deliveries = ? AND receipt = ? AND dead = ?", row.ID, row.Deliveries, row.Receipt, false)

		if row.Deliveries >= q.opts.MaxDeliveries {
			if err := claim.Updates(map[string]any{"dead": true, "receipt": ""}).Error; err != nil {
				return out, queueError(fmt.Errorf("dead-letter message %s: %w", row.ID, err), "receive")
			}
			continue
		}

		receipt := uuid.NewString()
		result := claim.Updates(map[string]any{
			"receipt":    receipt,
			"deliveries": row.Deliveries + 1,
			"visible_at": now.Add(q.opts.VisibilityTimeout),
		})
		if result.Error != nil {
			return out, queueError(fmt.Errorf("claim message %s: %w", row.ID, result.Error), "receive")
		}
		if result.RowsAffected == 0 {
			// Claimed by another receiver.
			continue
		}
		row.Deliveries++
		out = append(out, Delivery{Message: fromRow(row), Receipt: receipt})
	}
	return out, nil
}

func (q *DatabaseQueue) Ack(ctx context.Context, receipt string) error {
	if receipt == "" {
		return queueError(ErrInvalidReceipt, "ack")
	}
	result := q.db.WithContext(ctx).
		Where("queue_name = ? AND receipt = ? AND visible_at > ?", q.name, receipt, q.opts.Clock()).
		Delete(&entities.QueueMessage{})
	if result.Error != nil {
		return queueError(fmt.Errorf("delete message: %w", result.Error), "ack")
	}
	if result.RowsAffected == 0 {
		return queueError(ErrInvalidReceipt, "ack")
	}
	return nil
}

func (q *DatabaseQueue) Release(ctx context.Context, receipt string, delay time.Duration) error {
	if receipt == "" {
		return queueError(ErrInvalidReceipt, "release")
	}
	now := q.opts.Clock()
	result := q.scope(ctx).
		Where("receipt = ? AND visible_at > ?", receipt, now).
		Updates(map[string]any{"receipt": "", "visible_at": now.Add(max(delay, 0))})
	if result.Error != nil {
		return queueError(fmt.Errorf("release message: %w", result.Error), "release")
	}
	if result.RowsAffected == 0 {
		return queueError(ErrInvalidReceipt, "release")
	}
	return nil
}

func (q *DatabaseQueue) Purge(ctx context.Context, migrationID string) (int, error) {
	result := q.db.WithContext(ctx).
		Where("queue_name = ? AND migration_id = ? AND dead = ? AND visible_at <= ?", q.name, migrationID, false, q.opts.Clock()).
		Delete(&entities.QueueMessage{})
	if result.Error != nil {
		return 0, queueError(fmt.Errorf("purge messages: %w", result.Error), "purge")
	}
	return int(result.RowsAffected), nil
}

func (q *DatabaseQueue) ProbablyHasMessages(ctx context.Context, migrationID string) (bool, error) {
	var n int64
	err := q.scope(ctx).
		Where("migration_id = ? AND dead = ? AND control = ?", migrationID, false, false).
		Count(&n).Error
	if err != nil {
		return false, queueError(fmt.Errorf("count outstanding messages: %w", err), "outstanding")
	}
	return n > 0, nil
}

func (q *DatabaseQueue) deadScope(ctx context.Context, migrationID string) *gorm.DB {
	tx := q.scope(ctx).Where("dead = ?", true)
	if migrationID != "" {
		tx = tx.Where("migration_id = ?", migrationID)
	}
	return tx
}

func (q *DatabaseQueue) DeadLetterCount(ctx context.Context, migrationID string) (int64, error) {
	var n int64
	if err := q.deadScope(ctx, migrationID).Count(&n).Error; err != nil {
		return 0, queueError(fmt.Errorf("count dead letters: %w", err), "dead-letter-count")
	}
	return n, nil
}

func (q *DatabaseQueue) DeadLetters(ctx context.Context, migrationID string) ([]Message, error) {
	var rows []entities.QueueMessage
	if err := q.deadScope(ctx, migrationID).Order("sent_at").Find(&rows).Error; err != nil {
		return nil, queueError(fmt.Errorf("list dead letters: %w", err), "dead-letters")
	}
	out := make([]Message, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

func (q *DatabaseQueue) Redrive(ctx context.Context, migrationID string) (int, error) {
	result := q.deadScope(ctx, migrationID).Updates(map[string]any{
		"dead":       false,
		"deliveries": 0,
		"receipt":    "",
		"visible_at": q.opts.Clock(),
	})
	if result.Error != nil {
		return 0, queueError(fmt.Errorf("redrive dead letters: %w", result.Error), "redrive")
	}
	return int(result.RowsAffected), nil
}

func (q *DatabaseQueue) DeadLetter(ctx context.Context, msg Message) error {
	now := q.opts.Clock()
	row := q.toRow(msg, now)
	row.Dead = true
	row.VisibleAt = now
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return queueError(fmt.Errorf("insert dead letter: %w", err), "dead-letter")
	}
	return nil
}

func (q *DatabaseQueue) Stats(ctx context.Context) (Stats, error) {
	now := q.opts.Clock()
	var s Stats
	counts := []struct {
		target *int
		where  string
		args   []any
	}{
		{&s.Dead, "dead = ?", []any{true}},
		{&s.Visible, "dead = ? AND visible_at <= ?", []any{false, now}},
		{&s.InFlight, "dead = ? AND visible_at > ? AND receipt <> ''", []any{false, now}},
		{&s.Delayed, "dead = ? AND visible_at > ? AND receipt = ''", []any{false, now}},
	}
	for _, c := range counts {
		var n int64
		if err := q.scope(ctx).Where(c.where, c.args...).Count(&n).Error; err != nil {
			return Stats{}, queueError(fmt.Errorf("count messages: %w", err), "stats")
		}
		*c.target = int(n)
	}
	return s, nil
}

func (q *DatabaseQueue) toRow(msg Message, now time.Time) entities.QueueMessage {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	return entities.QueueMessage{
		ID:          id,
		QueueName:   q.name,
		MigrationID: msg.MigrationID,
		Kind:        msg.Kind,
		Control:     msg.Control,
		Body:        msg.Body,
		Deliveries:  msg.Deliveries,
		SentAt:      sentAt.UTC(),
	}
}

func fromRow(row *entities.QueueMessage) Message {
	return Message{
		ID:          row.ID,
		MigrationID: row.MigrationID,
		Kind:        row.Kind,
		Control:     row.Control,
		Body:        row.Body,
		Deliveries:  row.Deliveries,
		SentAt:      row.SentAt.UTC(),
	}
}
