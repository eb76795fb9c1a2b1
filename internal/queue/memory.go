package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	msg       Message
	visibleAt time.Time
	receipt   string
}

// MemoryQueue is an in-process Queue. Messages are kept in FIFO order.
type MemoryQueue struct {
	mu      sync.Mutex
	opts    Options
	entries []*memoryEntry
	dead    []Message
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{opts: opts.withDefaults()}
}

func (q *MemoryQueue) Send(_ context.Context, msg Message, delay time.Duration) error {
	if msg.Kind == "" {
		return queueError(ErrInvalidMessage, "send")
	}
	now := q.opts.Clock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.Body = slices.Clone(msg.Body)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &memoryEntry{msg: msg, visibleAt: now.Add(max(delay, 0))})
	return nil
}

func (q *MemoryQueue) Receive(_ context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	now := q.opts.Clock()

	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Delivery
	kept := q.entries[:0]
	for _, e := range q.entries {
		if len(out) >= limit || e.visibleAt.After(now) {
			kept = append(kept, e)
			continue
		}
		if e.msg.Deliveries >= q.opts.MaxDeliveries {
			e.receipt = ""
			q.dead = append(q.dead, e.msg)
			continue
		}
		e.msg.Deliveries++
		e.receipt = uuid.NewString()
		e.visibleAt = now.Add(q.opts.VisibilityTimeout)
		out = append(out, Delivery{Message: e.msg, Receipt: e.receipt})
		kept = append(kept, e)
	}
	clear(q.entries[len(kept):])
	q.entries = kept
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.findReceipt(receipt)
	if i < 0 {
		return queueError(ErrInvalidReceipt, "ack")
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	return nil
}

func (q *MemoryQueue) Release(_ context.Context, receipt string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.findReceipt(receipt)
	if i < 0 {
		return queueError(ErrInvalidReceipt, "release")
	}
	q.entries[i].receipt = ""
	q.entries[i].visibleAt = q.opts.Clock().Add(max(delay, 0))
	return nil
}

// findReceipt returns the index of the in-flight entry holding receipt. A receipt
// whose visibility timeout has passed is no longer valid.
func (q *MemoryQueue) findReceipt(receipt string) int {
	if receipt == "" {
		return -1
	}
	now := q.opts.Clock()
	for i, e := range q.entries {
		if e.receipt == receipt {
			if e.visibleAt.After(now) {
				return i
			}
			return -1
		}
	}
	return -1
}

func (q *MemoryQueue) Purge(_ context.Context, migrationID string) (int, error) {
	now := q.opts.Clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(e *memoryEntry) bool {
		return e.msg.MigrationID == migrationID && !e.visibleAt.After(now)
	})
	return before - len(q.entries), nil
}

func (q *MemoryQueue) ProbablyHasMessages(_ context.Context, migrationID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.entries, func(e *memoryEntry) bool {
		return e.msg.MigrationID == migrationID && !e.msg.Control
	}), nil
}

func (q *MemoryQueue) DeadLetterCount(_ context.Context, migrationID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for i := range q.dead {
		if migrationID == "" || q.dead[i].MigrationID == migrationID {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) DeadLetters(_ context.Context, migrationID string) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Message
	for _, m := range q.dead {
		if migrationID == "" || m.MigrationID == migrationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (q *MemoryQueue) Redrive(_ context.Context, migrationID string) (int, error) {
	now := q.opts.Clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	moved := 0
	q.dead = slices.DeleteFunc(q.dead, func(m Message) bool {
		if migrationID != "" && m.MigrationID != migrationID {
			return false
		}
		m.Deliveries = 0
		q.entries = append(q.entries, &memoryEntry{msg: m, visibleAt: now})
		moved++
		return true
	})
	return moved, nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = q.opts.Clock()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, msg)
	return nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	now := q.opts.Clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Dead: len(q.dead)}
	for _, e := range q.entries {
		switch {
		case e.receipt != "" && e.visibleAt.After(now):
			s.InFlight++
		case e.visibleAt.After(now):
			s.Delayed++
		default:
			s.Visible++
		}
	}
	return s, nil
}
