package datastore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
)

func TestHistoryStoreCreateAndGet(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()

	h := history("m1", "visits", migration.StatusStarted, testTime)
	require.NoError(t, store.Create(ctx, h))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, h, *got)
	assert.Nil(t, got.WhenEnded)
}

func TestHistoryStoreGetUnknown(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.Is(err, migration.ErrMigrationNotFound))
}

func TestHistoryStoreRequestCancel(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, history("m1", "visits", migration.StatusStarted, testTime)))

	require.NoError(t, store.RequestCancel(ctx, "m1"))
	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, migration.StatusCancelRequested, got.Status)

	err = store.RequestCancel(ctx, "m1")
	require.Error(t, err)
	assert.True(t, errors.IsState(err))
	assert.Contains(t, err.Error(), "current status is CANCELLED_REQUESTED, expected STARTED")

	err = store.RequestCancel(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestHistoryStoreFinalizeIsCompareAndSet(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, history("m1", "visits", migration.StatusStarted, testTime)))
	require.NoError(t, store.RequestCancel(ctx, "m1"))

	ended := testTime.Add(time.Hour)
	err := store.Finalize(ctx, "m1", migration.StatusStarted, migration.StatusCompleted, 5, 0, ended)
	require.Error(t, err)
	assert.True(t, errors.IsState(err), "completion must not override a cancel request")

	require.NoError(t, store.Finalize(ctx, "m1", migration.StatusCancelRequested, migration.StatusCancelled, 3, 1, ended))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, migration.StatusCancelled, got.Status)
	assert.Equal(t, int64(3), got.RecordsMigrated)
	assert.Equal(t, int64(1), got.RecordsFailed)
	require.NotNil(t, got.WhenEnded)
	assert.True(t, ended.Equal(*got.WhenEnded))

	err = store.Finalize(ctx, "m1", migration.StatusCancelRequested, migration.StatusCancelled, 9, 9, ended)
	assert.True(t, errors.IsState(err), "terminal rows never change")
	got, err = store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.RecordsMigrated)
}

func TestHistoryStoreFinalizeRejectsNonTerminalStatus(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, history("m1", "visits", migration.StatusStarted, testTime)))

	err := store.Finalize(ctx, "m1", migration.StatusStarted, migration.StatusCancelRequested, 0, 0, testTime)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestHistoryStoreConcurrentFinalizeHasOneWinner(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, history("m1", "visits", migration.StatusStarted, testTime)))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Finalize(ctx, "m1", migration.StatusStarted, migration.StatusCompleted, int64(i), 0, testTime)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.IsState(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestHistoryStoreList(t *testing.T) {
	store := NewHistoryStore(newTestManager(t).DB())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, history("m1", "visits", migration.StatusStarted, testTime)))
	require.NoError(t, store.Create(ctx, history("m2", "visits", migration.StatusStarted, testTime.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, history("m3", "balances", migration.StatusStarted, testTime.Add(2*time.Minute))))
	require.NoError(t, store.Finalize(ctx, "m1", migration.StatusStarted, migration.StatusCompleted, 14, 0, testTime.Add(time.Hour)))

	ids := func(q migration.HistoryQuery) []string {
		t.Helper()
		rows, err := store.List(ctx, q)
		require.NoError(t, err)
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.MigrationID)
		}
		return out
	}

	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(migration.HistoryQuery{}))
	assert.Equal(t, []string{"m2", "m1"}, ids(migration.HistoryQuery{DomainType: "visits"}))
	assert.Equal(t, []string{"m1"}, ids(migration.HistoryQuery{Status: migration.StatusCompleted}))
	assert.Equal(t, []string{"m2"}, ids(migration.HistoryQuery{MigrationID: "m2"}))
	assert.Equal(t, []string{"m3"}, ids(migration.HistoryQuery{Limit: 1}))
	assert.Empty(t, ids(migration.HistoryQuery{DomainType: "appointments"}))
}
