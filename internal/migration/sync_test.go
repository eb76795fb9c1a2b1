package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/errors"
)

func TestSyncIgnoresSelfOriginatedEvents(t *testing.T) {
	h := newHarness(t, 1)

	outcome, err := h.engine.Sync(context.Background(), SyncEvent[string]{Type: SyncInserted, Key: "L001", Origin: DefaultSelfOrigin})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, h.source.detailCalls)
	assert.Zero(t, h.target.count())
	assert.Len(t, h.events.named(EventSyncIgnored), 1)
}

func TestSyncWritesSourceCreatedMapping(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	outcome, err := h.engine.Sync(ctx, SyncEvent[string]{Type: SyncInserted, Key: "L002", Origin: "legacy"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	rec, err := h.mappings.GetByLegacyID(ctx, "L002")
	require.NoError(t, err)
	assert.Equal(t, MappingSourceCreated, rec.MappingType)
	assert.Empty(t, rec.Label)

	outcome, err = h.engine.Sync(ctx, SyncEvent[string]{Type: SyncUpdated, Key: "L002", Origin: "legacy"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMigrated, outcome)
	assert.Equal(t, 1, h.target.count())

	processed := h.events.named(EventSyncProcessed)
	require.Len(t, processed, 2)
	assert.Equal(t, "T001", processed[0].NewID)
	assert.Equal(t, "INSERTED", processed[0].Attributes["event_type"])
}

func TestSyncMissingEntity(t *testing.T) {
	tests := []struct {
		name      string
		eventType SyncEventType
		wantErr   bool
	}{
		{"deleted entity is skipped", SyncDeleted, false},
		{"updated entity is an error", SyncUpdated, true},
		{"inserted entity is an error", SyncInserted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			h.source.missing["L001"] = true

			outcome, err := h.engine.Sync(context.Background(), SyncEvent[string]{Type: tt.eventType, Key: "L001", Origin: "legacy"})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsNotFound(err))
				assert.Len(t, h.events.named(EventSyncFailed), 1)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, outcome)
		})
	}
}

func TestSyncRejectsUnknownEventType(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.engine.Sync(context.Background(), SyncEvent[string]{Type: "MERGED", Key: "L001"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Empty(t, h.source.detailCalls)
}

func TestRepair(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	outcome, err := h.engine.RepairRaw(ctx, "L001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	processed := h.events.named(EventSyncProcessed)
	require.Len(t, processed, 1)
	assert.Equal(t, RepairOrigin, processed[0].Attributes["origin"])

	h.source.missing["L404"] = true
	_, err = h.engine.Repair(ctx, "L404")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDecodeSyncEvent(t *testing.T) {
	parse := func(s string) (string, error) {
		if strings.HasPrefix(s, "L") {
			return s, nil
		}
		return "", errors.NewStd("keys start with L")
	}
	tests := []struct {
		name    string
		payload string
		want    SyncEvent[string]
		wantErr bool
	}{
		{
			name:    "upper case type",
			payload: `{"eventType":"INSERTED","key":"L1","origin":"legacy"}`,
			want:    SyncEvent[string]{Type: SyncInserted, Key: "L1", Origin: "legacy"},
		},
		{
			name:    "lower case type",
			payload: `{"eventType":"deleted","key":"L2"}`,
			want:    SyncEvent[string]{Type: SyncDeleted, Key: "L2"},
		},
		{name: "unknown type", payload: `{"eventType":"MERGED","key":"L1"}`, wantErr: true},
		{name: "missing key", payload: `{"eventType":"UPDATED"}`, wantErr: true},
		{name: "unparseable key", payload: `{"eventType":"UPDATED","key":"X1"}`, wantErr: true},
		{name: "not json", payload: `UPDATED L1`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSyncEvent([]byte(tt.payload), parse)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleSyncPayload(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleSyncPayload(ctx, []byte(`{"eventType":"inserted","key":"L002","origin":"legacy"}`)))
	_, err := h.mappings.GetByLegacyID(ctx, "L002")
	require.NoError(t, err)

	require.NoError(t, h.engine.HandleSyncPayload(ctx, []byte(`{"eventType":"UPDATED","key":"L001","origin":"syncbridge"}`)))
	_, err = h.mappings.GetByLegacyID(ctx, "L001")
	assert.True(t, errors.Is(err, ErrMappingNotFound), "self-originated events do not write")

	err = h.engine.HandleSyncPayload(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.Len(t, h.events.named(EventSyncFailed), 1)
}
