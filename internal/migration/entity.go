package migration

import (
	"context"
	"fmt"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

// writeRequest describes one run of the idempotent write algorithm.
type writeRequest[K any] struct {
	key         K
	mappingType MappingType
	label       string
	migrationID string
}

// writeResult is what the write algorithm observed.
type writeResult struct {
	outcome  Outcome
	legacyID string
	newID    string
}

// writeEntity runs the idempotent single-entity algorithm shared by migration and
// synchronisation: mapping lookup, fetch, transform, target create and mapping
// record. Fetch, transform and create errors are returned unchanged to the caller.
func (e *Engine[F, K, E, R]) writeEntity(ctx context.Context, req writeRequest[K]) (writeResult, error) {
	res := writeResult{legacyID: e.caps.LegacyID(req.key)}

	existing, err := e.mappings.GetByLegacyID(ctx, res.legacyID)
	switch {
	case err == nil:
		res.outcome = OutcomeAlreadyMigrated
		res.newID = existing.NewID
		return res, nil
	case !errors.Is(err, ErrMappingNotFound):
		return res, fmt.Errorf("lookup mapping %s: %w", res.legacyID, err)
	}

	entity, err := e.caps.Source.GetDetail(ctx, req.key)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", res.legacyID, err)
	}
	representation, err := e.caps.Transform(ctx, entity)
	if err != nil {
		return res, fmt.Errorf("transform %s: %w", res.legacyID, err)
	}
	newID, err := e.caps.Target.Create(ctx, representation)
	if err != nil {
		return res, fmt.Errorf("create %s in target: %w", res.legacyID, err)
	}
	res.newID = newID

	record := MappingRecord{
		LegacyID:    res.legacyID,
		NewID:       newID,
		MappingType: req.mappingType,
		Label:       req.label,
		WhenCreated: e.now(),
	}
	err = e.mappings.Create(ctx, record)

	var dup *DuplicateMappingError
	switch {
	case err == nil:
		res.outcome = OutcomeCreated
		return res, nil
	case errors.As(err, &dup):
		e.reportDuplicate(ctx, req.migrationID, dup)
		res.outcome = OutcomeDuplicate
		return res, nil
	}

	// The target entity exists now, so only the mapping write may be repeated.
	e.log.Warn("mapping write failed, deferring to retry task",
		logger.String("legacy_id", record.LegacyID),
		logger.String("new_id", record.NewID),
		logger.Error(err))
	mc := Context[MappingRecord]{MigrationID: req.migrationID, DomainType: e.cfg.DomainType, Body: record}
	if serr := send(ctx, e.queue, TaskRetryMapping, mc, 0); serr != nil {
		// The entity task must not be redelivered once the target entity exists.
		lost := errors.Join(fmt.Errorf("create mapping %s: %w", record.LegacyID, err), serr)
		e.log.Error("mapping lost, retry task could not be enqueued",
			logger.String("legacy_id", record.LegacyID),
			logger.String("new_id", record.NewID),
			logger.Error(lost))
		e.telemetry.Track(ctx, Event{
			Name:        EventMappingLost,
			MigrationID: req.migrationID,
			DomainType:  e.cfg.DomainType,
			LegacyID:    record.LegacyID,
			NewID:       record.NewID,
			Outcome:     OutcomeMappingDeferred,
			Err:         lost,
		})
	}
	res.outcome = OutcomeMappingDeferred
	return res, nil
}

func (e *Engine[F, K, E, R]) reportDuplicate(ctx context.Context, migrationID string, dup *DuplicateMappingError) {
	e.log.Warn("duplicate mapping",
		logger.String("migration_id", migrationID),
		logger.String("existing_legacy_id", dup.Existing.LegacyID),
		logger.String("existing_new_id", dup.Existing.NewID),
		logger.String("duplicate_legacy_id", dup.Duplicate.LegacyID),
		logger.String("duplicate_new_id", dup.Duplicate.NewID))
	e.telemetry.Track(ctx, Event{
		Name:        EventMappingDuplicate,
		MigrationID: migrationID,
		DomainType:  e.cfg.DomainType,
		LegacyID:    dup.Duplicate.LegacyID,
		NewID:       dup.Duplicate.NewID,
		Outcome:     OutcomeDuplicate,
		Attributes: map[string]string{
			"existing_legacy_id":  dup.Existing.LegacyID,
			"existing_new_id":     dup.Existing.NewID,
			"duplicate_legacy_id": dup.Duplicate.LegacyID,
			"duplicate_new_id":    dup.Duplicate.NewID,
		},
	})
}

// processEntity handles one PROCESS_ENTITY task of a migration.
func (e *Engine[F, K, E, R]) processEntity(ctx context.Context, msg queue.Message) error {
	mc, err := decodeTask[K](msg)
	if err != nil {
		return err
	}

	res, err := e.writeEntity(ctx, writeRequest[K]{
		key:         mc.Body,
		mappingType: MappingMigrated,
		label:       mc.MigrationID,
		migrationID: mc.MigrationID,
	})
	if err != nil {
		e.telemetry.Track(ctx, Event{
			Name:        EventEntityFailed,
			MigrationID: mc.MigrationID,
			DomainType:  e.cfg.DomainType,
			LegacyID:    res.legacyID,
			Err:         err,
			Attributes:  map[string]string{"deliveries": fmt.Sprint(msg.Deliveries)},
		})
		return err
	}

	e.log.Trace("entity processed",
		logger.String("migration_id", mc.MigrationID),
		logger.String("legacy_id", res.legacyID),
		logger.String("outcome", string(res.outcome)))
	e.telemetry.Track(ctx, Event{
		Name:        EventEntityProcessed,
		MigrationID: mc.MigrationID,
		DomainType:  e.cfg.DomainType,
		LegacyID:    res.legacyID,
		NewID:       res.newID,
		Outcome:     res.outcome,
	})
	return nil
}

// retryMapping makes exactly one attempt to persist a deferred mapping. Further
// attempts are left to queue redelivery.
func (e *Engine[F, K, E, R]) retryMapping(ctx context.Context, msg queue.Message) error {
	mc, err := decodeTask[MappingRecord](msg)
	if err != nil {
		return err
	}
	record := mc.Body

	err = e.mappings.Create(ctx, record)
	var dup *DuplicateMappingError
	switch {
	case err == nil:
	case errors.As(err, &dup) && dup.sameRecord():
		// An earlier attempt was persisted even though it reported failure.
	case errors.As(err, &dup):
		e.reportDuplicate(ctx, mc.MigrationID, dup)
		return nil
	default:
		return fmt.Errorf("retry mapping %s: %w", record.LegacyID, err)
	}

	e.telemetry.Track(ctx, Event{
		Name:        EventMappingRetried,
		MigrationID: mc.MigrationID,
		DomainType:  e.cfg.DomainType,
		LegacyID:    record.LegacyID,
		NewID:       record.NewID,
		Outcome:     OutcomeCreated,
	})
	return nil
}
