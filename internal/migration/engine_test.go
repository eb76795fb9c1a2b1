package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/queue"
	"github.com/tphakala/syncbridge/internal/testutil"
)

func TestNewReportsMissingCollaborators(t *testing.T) {
	_, err := New(Config{}, Capabilities[testFilter, string, sourceEntity, targetEntity]{}, Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "source")
	assert.Contains(t, err.Error(), "mapping store")
}

func TestConfigDefaultsKeepZeroDelays(t *testing.T) {
	cfg := Config{DomainType: "visits"}.withDefaults()
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultCompletionThreshold, cfg.CompletionThreshold)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultSelfOrigin, cfg.SelfOrigin)
	assert.Zero(t, cfg.BusyDelay)
	assert.Zero(t, cfg.QuietDelay)
}

func TestUnknownTaskKindIsDeadLettered(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	require.NoError(t, h.queue.Send(ctx, queue.Message{MigrationID: "m1", Kind: "REINDEX"}, 0))

	n, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dead, err := h.queue.DeadLetterCount(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	tasks := h.events.named(EventTaskProcessed)
	require.Len(t, tasks, 3)
	assert.True(t, errors.IsCategory(tasks[0].Err, errors.CategoryValidation))
	assert.Equal(t, "REINDEX", tasks[0].Attributes["kind"])
}

func TestRunCompletesMigrationAndStopsOnCancel(t *testing.T) {
	h := newHarness(t, 37, func(c *Config) { c.Workers = 4 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	id, err := h.engine.Start(context.Background(), testFilter{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		row, err := h.history.Get(context.Background(), id)
		return err == nil && row.Status == StatusCompleted
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "Run did not return after cancellation"))

	row := h.history.get(t, id)
	assert.Equal(t, int64(37), row.RecordsMigrated)
	assert.Equal(t, 37, h.target.count())
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, 5)
	_, err := h.engine.Start(context.Background(), testFilter{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := h.engine.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
