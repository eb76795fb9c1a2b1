package queue

import (
	"context"
	"time"
)

// Observer receives the duration and result of queue operations.
type Observer interface {
	ObserveQueueOperation(queue, operation string, duration time.Duration, err error)
}

// instrumented times the hot-path operations of the wrapped queue.
type instrumented struct {
	Queue
	name string
	obs  Observer
}

// Instrument wraps q so that sends, receives, acks, releases and purges are
// reported to obs. A nil observer returns q unchanged.
func Instrument(q Queue, name string, obs Observer) Queue {
	if obs == nil {
		return q
	}
	return &instrumented{Queue: q, name: name, obs: obs}
}

func (q *instrumented) observe(op string, start time.Time, err error) {
	q.obs.ObserveQueueOperation(q.name, op, time.Since(start), err)
}

func (q *instrumented) Send(ctx context.Context, msg Message, delay time.Duration) error {
	start := time.Now()
	err := q.Queue.Send(ctx, msg, delay)
	q.observe("send", start, err)
	return err
}

func (q *instrumented) Receive(ctx context.Context, limit int) ([]Delivery, error) {
	start := time.Now()
	out, err := q.Queue.Receive(ctx, limit)
	q.observe("receive", start, err)
	return out, err
}

func (q *instrumented) Ack(ctx context.Context, receipt string) error {
	start := time.Now()
	err := q.Queue.Ack(ctx, receipt)
	q.observe("ack", start, err)
	return err
}

func (q *instrumented) Release(ctx context.Context, receipt string, delay time.Duration) error {
	start := time.Now()
	err := q.Queue.Release(ctx, receipt, delay)
	q.observe("release", start, err)
	return err
}

func (q *instrumented) Purge(ctx context.Context, migrationID string) (int, error) {
	start := time.Now()
	n, err := q.Queue.Purge(ctx, migrationID)
	q.observe("purge", start, err)
	return n, err
}
