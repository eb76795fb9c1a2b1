package migration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

// Start estimates the number of entities matching filter, records a STARTED history
// row and enqueues the DIVIDE task. A source failure during estimation aborts before
// anything is written.
func (e *Engine[F, K, E, R]) Start(ctx context.Context, filter F) (string, error) {
	total, err := e.caps.Source.CountAndFirstPage(ctx, filter, e.cfg.EstimatePageSize)
	if err != nil {
		return "", errors.New(fmt.Errorf("estimate %s migration: %w", e.cfg.DomainType, err)).
			Component("engine").
			Category(errors.CategoryIntegration).
			Context("domain", e.cfg.DomainType).
			Build()
	}

	serialized, err := json.Marshal(filter)
	if err != nil {
		return "", errors.New(fmt.Errorf("serialize filter: %w", err)).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
	}

	id := uuid.NewString()
	history := History{
		MigrationID:          id,
		DomainType:           e.cfg.DomainType,
		Status:               StatusStarted,
		WhenStarted:          e.now(),
		EstimatedRecordCount: total,
		SerializedFilter:     string(serialized),
	}
	if err := e.history.Create(ctx, history); err != nil {
		return "", err
	}

	mc := Context[F]{MigrationID: id, DomainType: e.cfg.DomainType, EstimatedCount: total, Body: filter}
	if err := send(ctx, e.queue, TaskDivide, mc, 0); err != nil {
		// Nothing was fanned out; close the row so it does not stay STARTED forever.
		if ferr := e.history.Finalize(ctx, id, StatusStarted, StatusCancelled, 0, 0, e.now()); ferr != nil {
			e.log.Error("closing migration after failed divide enqueue",
				logger.String("migration_id", id), logger.Error(ferr))
		}
		return "", err
	}

	e.log.Info("migration started",
		logger.String("migration_id", id),
		logger.Int64("estimated_count", total))
	e.telemetry.Track(ctx, Event{
		Name:        EventMigrationStarted,
		MigrationID: id,
		DomainType:  e.cfg.DomainType,
		Attributes:  map[string]string{"estimated_count": fmt.Sprint(total)},
	})
	return id, nil
}

// divide fans out one PROCESS_PAGE task per page followed by the first STATUS_CHECK.
func (e *Engine[F, K, E, R]) divide(ctx context.Context, msg queue.Message) error {
	mc, err := decodeTask[F](msg)
	if err != nil {
		return err
	}

	pages := PageCount(mc.EstimatedCount, e.cfg.PageSize)
	for n := range pages {
		page := Page[F]{Filter: mc.Body, PageNumber: n, PageSize: e.cfg.PageSize}
		if err := send(ctx, e.queue, TaskProcessPage, WithBody(mc, page), 0); err != nil {
			return err
		}
	}

	e.log.Debug("migration divided",
		logger.String("migration_id", mc.MigrationID),
		logger.Int("pages", pages),
		logger.Int("page_size", e.cfg.PageSize))
	return send(ctx, e.queue, TaskStatusCheck, WithBody(mc, StatusCheck{}), 0)
}

// Cancel requests cancellation of a STARTED migration, purges its visible queued
// tasks and starts the cancellation loop. Tasks already delivered run to completion.
// A migration already in CANCELLED_REQUESTED is purged and its loop reseeded.
func (e *Engine[F, K, E, R]) Cancel(ctx context.Context, migrationID string) error {
	h, err := e.history.Get(ctx, migrationID)
	if err != nil {
		return err
	}
	if h.DomainType != e.cfg.DomainType {
		return errors.Newf("migration %s belongs to domain %s", migrationID, h.DomainType).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
	}

	// A row left in CANCELLED_REQUESTED by a failed enqueue has no cancellation
	// loop; cancelling it again purges and seeds the loop once more.
	if h.Status != StatusCancelRequested {
		if err := e.history.RequestCancel(ctx, migrationID); err != nil {
			return err
		}
	}

	purged, err := e.queue.Purge(ctx, migrationID)
	if err != nil {
		e.log.Warn("purge failed, cancelling without purge",
			logger.String("migration_id", migrationID), logger.Error(err))
	}

	mc := Context[StatusCheck]{
		MigrationID:    migrationID,
		DomainType:     e.cfg.DomainType,
		EstimatedCount: h.EstimatedRecordCount,
	}
	if err := send(ctx, e.queue, TaskCancel, mc, 0); err != nil {
		return err
	}

	e.log.Info("migration cancel requested",
		logger.String("migration_id", migrationID),
		logger.Int("purged", purged))
	e.telemetry.Track(ctx, Event{
		Name:        EventMigrationCancelRequested,
		MigrationID: migrationID,
		DomainType:  e.cfg.DomainType,
		Attributes:  map[string]string{"purged": fmt.Sprint(purged)},
	})
	return nil
}
