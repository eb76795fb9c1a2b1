// Package migration implements the generic migration and synchronisation engine:
// paginated bulk copy over an at-least-once queue, idempotent per-entity writes
// recorded in a mapping store, debounced completion and cancellation detection,
// and live change-event replication with loop prevention.
package migration

import (
	"fmt"
	"time"

	"github.com/tphakala/syncbridge/internal/errors"
)

// Status is the lifecycle state of a migration.
type Status string

const (
	StatusStarted         Status = "STARTED"
	StatusCancelRequested Status = "CANCELLED_REQUESTED"
	StatusCancelled       Status = "CANCELLED"
	StatusCompleted       Status = "COMPLETED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusCancelRequested, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// MappingType records how a mapping came into existence.
type MappingType string

const (
	MappingMigrated      MappingType = "MIGRATED"
	MappingSourceCreated MappingType = "SOURCE_CREATED"
	MappingTargetCreated MappingType = "TARGET_CREATED"
)

// MappingRecord links one legacy id to one target id. At most one record exists
// per legacy id and records are never updated.
type MappingRecord struct {
	LegacyID    string      `json:"legacyId" msgpack:"legacyId"`
	NewID       string      `json:"newId" msgpack:"newId"`
	MappingType MappingType `json:"mappingType" msgpack:"mappingType"`
	Label       string      `json:"label" msgpack:"label"`
	WhenCreated time.Time   `json:"whenCreated" msgpack:"whenCreated"`
}

// ErrMappingNotFound is returned by MappingStore.GetByLegacyID when no record exists.
var ErrMappingNotFound = errors.NewStd("mapping not found")

// ErrMigrationNotFound is wrapped by HistoryStore implementations for unknown ids.
var ErrMigrationNotFound = errors.NewStd("migration not found")

// DuplicateMappingError is returned by MappingStore.Create when the legacy id or the
// new id is already mapped to a different counterpart.
type DuplicateMappingError struct {
	Existing  MappingRecord `json:"existing"`
	Duplicate MappingRecord `json:"duplicate"`
}

func (e *DuplicateMappingError) Error() string {
	return fmt.Sprintf("duplicate mapping: existing %s->%s, duplicate %s->%s",
		e.Existing.LegacyID, e.Existing.NewID, e.Duplicate.LegacyID, e.Duplicate.NewID)
}

// ErrorCategory lets the error builder classify wrapped duplicates as conflicts.
func (e *DuplicateMappingError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConflict
}

// sameRecord reports whether the existing mapping is the one we tried to write.
func (e *DuplicateMappingError) sameRecord() bool {
	return e.Existing.LegacyID == e.Duplicate.LegacyID && e.Existing.NewID == e.Duplicate.NewID
}

// History is the audit row of one migration.
type History struct {
	MigrationID          string     `json:"migrationId" yaml:"migrationId"`
	DomainType           string     `json:"domainType" yaml:"domainType"`
	Status               Status     `json:"status" yaml:"status"`
	WhenStarted          time.Time  `json:"whenStarted" yaml:"whenStarted"`
	WhenEnded            *time.Time `json:"whenEnded,omitempty" yaml:"whenEnded,omitempty"`
	EstimatedRecordCount int64      `json:"estimatedRecordCount" yaml:"estimatedRecordCount"`
	RecordsMigrated      int64      `json:"recordsMigrated" yaml:"recordsMigrated"`
	RecordsFailed        int64      `json:"recordsFailed" yaml:"recordsFailed"`
	SerializedFilter     string     `json:"filter" yaml:"filter"`
}

// HistoryQuery filters History listings. Zero fields match everything.
type HistoryQuery struct {
	MigrationID string
	DomainType  string
	Status      Status
	Limit       int
}

// Context is the envelope carried on every queued task of a migration. Stages
// derive a new Context with WithBody rather than mutating the one they received.
type Context[T any] struct {
	MigrationID    string `msgpack:"migrationId"`
	DomainType     string `msgpack:"domainType"`
	EstimatedCount int64  `msgpack:"estimatedCount"`
	Body           T      `msgpack:"body"`
}

// WithBody copies the envelope of c around a new body.
func WithBody[T, U any](c Context[T], body U) Context[U] {
	return Context[U]{
		MigrationID:    c.MigrationID,
		DomainType:     c.DomainType,
		EstimatedCount: c.EstimatedCount,
		Body:           body,
	}
}

// Page identifies one independently fetchable slice of the filtered id space.
type Page[F any] struct {
	Filter     F   `msgpack:"filter"`
	PageNumber int `msgpack:"pageNumber"`
	PageSize   int `msgpack:"pageSize"`
}

// StatusCheck travels through the completion and cancellation loops.
type StatusCheck struct {
	CheckCount int `msgpack:"checkCount"`
}

// PageCount returns ceil(estimated / pageSize).
func PageCount(estimated int64, pageSize int) int {
	if estimated <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return int((estimated + size - 1) / size)
}

// TaskKind names a queued task type.
type TaskKind string

const (
	TaskDivide        TaskKind = "DIVIDE"
	TaskProcessPage   TaskKind = "PROCESS_PAGE"
	TaskProcessEntity TaskKind = "PROCESS_ENTITY"
	TaskStatusCheck   TaskKind = "STATUS_CHECK"
	TaskCancel        TaskKind = "CANCEL"
	TaskRetryMapping  TaskKind = "RETRY_MAPPING"
)

// control reports whether the kind belongs to the status loops. Control messages
// are not outstanding work.
func (k TaskKind) control() bool {
	return k == TaskStatusCheck || k == TaskCancel
}

// Outcome is the observable result of processing one entity or event.
type Outcome string

const (
	OutcomeAlreadyMigrated Outcome = "already-migrated"
	OutcomeCreated         Outcome = "created"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeMappingDeferred Outcome = "mapping-deferred"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeSkipped         Outcome = "skipped"
)

// SyncEventType is the kind of change a sync event describes.
type SyncEventType string

const (
	SyncInserted SyncEventType = "INSERTED"
	SyncUpdated  SyncEventType = "UPDATED"
	SyncDeleted  SyncEventType = "DELETED"
)

// Valid reports whether t is a known event type.
func (t SyncEventType) Valid() bool {
	return t == SyncInserted || t == SyncUpdated || t == SyncDeleted
}

// SyncEvent is one change in the source system.
type SyncEvent[K any] struct {
	Type   SyncEventType
	Key    K
	Origin string // provenance marker; events written by this system carry the self origin
}
