package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedOp struct {
	queue string
	op    string
	err   error
}

type opRecorder struct {
	mu  sync.Mutex
	ops []observedOp
}

func (r *opRecorder) ObserveQueueOperation(queue, operation string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, observedOp{queue: queue, op: operation, err: err})
}

func TestInstrumentReportsHotPathOperations(t *testing.T) {
	rec := &opRecorder{}
	q := Instrument(NewMemoryQueue(Options{}), "visits", rec)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, task("m1", "DIVIDE"), 0))
	got, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, q.Release(ctx, got[0].Receipt, 0))
	got, err = q.Receive(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, got[0].Receipt))
	assert.Error(t, q.Ack(ctx, got[0].Receipt))
	_, err = q.Purge(ctx, "m1")
	require.NoError(t, err)

	busy, err := q.ProbablyHasMessages(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, busy)

	ops := make([]string, 0, len(rec.ops))
	for _, o := range rec.ops {
		assert.Equal(t, "visits", o.queue)
		ops = append(ops, o.op)
	}
	assert.Equal(t, []string{"send", "receive", "release", "receive", "ack", "ack", "purge"}, ops)
	assert.ErrorIs(t, rec.ops[5].err, ErrInvalidReceipt)
}

func TestInstrumentWithoutObserver(t *testing.T) {
	q := NewMemoryQueue(Options{})
	assert.Same(t, q, Instrument(q, "visits", nil))
}
