package migration

import (
	"context"
	"time"
)

// Source reads entities from the legacy system. Missing entities are reported with
// an error in the not-found category.
type Source[F, K, E any] interface {
	// CountAndFirstPage returns the total number of entities matching filter.
	CountAndFirstPage(ctx context.Context, filter F, pageSize int) (int64, error)
	// GetPage returns the keys of one page. Re-querying every page number of a
	// migration must yield the complete filtered set.
	GetPage(ctx context.Context, filter F, pageNumber, pageSize int) ([]K, error)
	GetDetail(ctx context.Context, key K) (E, error)
}

// Target writes entities to the replacement system. Create is not idempotent.
type Target[R any] interface {
	Create(ctx context.Context, representation R) (string, error)
}

// TransformFunc converts a source entity into the target representation.
type TransformFunc[E, R any] func(ctx context.Context, entity E) (R, error)

// MappingStore persists the legacy-to-target cross reference.
type MappingStore interface {
	// GetByLegacyID returns ErrMappingNotFound (possibly wrapped) when no record exists.
	GetByLegacyID(ctx context.Context, legacyID string) (*MappingRecord, error)
	// Create returns *DuplicateMappingError when either id is already mapped.
	Create(ctx context.Context, record MappingRecord) error
	CountByLabel(ctx context.Context, label string) (int64, error)
}

// HistoryStore persists MigrationHistory rows. Status changes are compare-and-set
// and fail with a state error when the row is not in the expected status.
type HistoryStore interface {
	Create(ctx context.Context, h History) error
	// Get returns a not-found error wrapping ErrMigrationNotFound for unknown ids.
	Get(ctx context.Context, migrationID string) (*History, error)
	List(ctx context.Context, q HistoryQuery) ([]History, error)
	// RequestCancel moves STARTED to CANCELLED_REQUESTED.
	RequestCancel(ctx context.Context, migrationID string) error
	// Finalize moves from to the terminal status to and records the final counts.
	Finalize(ctx context.Context, migrationID string, from, to Status, migrated, failed int64, whenEnded time.Time) error
}

// Capabilities is the per-domain strategy set injected into an Engine.
type Capabilities[F, K, E, R any] struct {
	Source    Source[F, K, E]
	Target    Target[R]
	Transform TransformFunc[E, R]
	// LegacyID derives the mapping key of an entity key.
	LegacyID func(K) string
	// ParseKey parses an entity key from its text form (repair requests and sync payloads).
	ParseKey func(string) (K, error)
}
