package migration

import (
	"context"
	"fmt"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

// statusLoop parameterizes the shared completion/cancellation state machine.
type statusLoop struct {
	kind     TaskKind
	active   Status // status the loop keeps running in
	terminal Status
	event    string
}

var completionLoop = statusLoop{
	kind:     TaskStatusCheck,
	active:   StatusStarted,
	terminal: StatusCompleted,
	event:    EventMigrationCompleted,
}

var cancellationLoop = statusLoop{
	kind:     TaskCancel,
	active:   StatusCancelRequested,
	terminal: StatusCancelled,
	event:    EventMigrationCancelled,
}

// poll runs one iteration of a status loop. While work may remain the check count
// resets and the check is rescheduled after the busy delay; otherwise it counts up
// after the quiet delay and finalizes on reaching the completion threshold.
//
// A loop whose migration left the active status stops: the completion loop yields
// to the cancellation loop, and either stops once the row is terminal.
func (e *Engine[F, K, E, R]) poll(ctx context.Context, msg queue.Message, loop statusLoop) error {
	mc, err := decodeTask[StatusCheck](msg)
	if err != nil {
		return err
	}
	log := e.log.Module("poller").With(
		logger.String("migration_id", mc.MigrationID),
		logger.String("loop", string(loop.kind)))

	h, err := e.history.Get(ctx, mc.MigrationID)
	if err != nil {
		return err
	}
	if h.Status != loop.active {
		log.Debug("status loop stopped", logger.String("status", string(h.Status)))
		return nil
	}

	busy, err := e.queue.ProbablyHasMessages(ctx, mc.MigrationID)
	if err != nil {
		return fmt.Errorf("check outstanding work: %w", err)
	}
	if busy {
		log.Trace("work outstanding", logger.Int("check_count", mc.Body.CheckCount))
		return send(ctx, e.queue, loop.kind, WithBody(mc, StatusCheck{}), e.cfg.BusyDelay)
	}

	count := mc.Body.CheckCount + 1
	if count < e.cfg.CompletionThreshold {
		log.Trace("queue quiet", logger.Int("check_count", count))
		return send(ctx, e.queue, loop.kind, WithBody(mc, StatusCheck{CheckCount: count}), e.cfg.QuietDelay)
	}
	return e.finalize(ctx, mc, loop, log)
}

func (e *Engine[F, K, E, R]) finalize(ctx context.Context, mc Context[StatusCheck], loop statusLoop, log logger.Logger) error {
	migrated, err := e.mappings.CountByLabel(ctx, mc.MigrationID)
	if err != nil {
		return fmt.Errorf("count migrated records: %w", err)
	}
	failed, err := e.queue.DeadLetterCount(ctx, mc.MigrationID)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}

	ended := e.now()
	err = e.history.Finalize(ctx, mc.MigrationID, loop.active, loop.terminal, migrated, failed, ended)
	if errors.IsState(err) {
		// Another check finalized first.
		log.Info("migration already finalized", logger.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("migration finalized",
		logger.String("status", string(loop.terminal)),
		logger.Int64("records_migrated", migrated),
		logger.Int64("records_failed", failed))
	e.telemetry.Track(ctx, Event{
		Name:        loop.event,
		MigrationID: mc.MigrationID,
		DomainType:  e.cfg.DomainType,
		Attributes: map[string]string{
			"status":           string(loop.terminal),
			"estimated_count":  fmt.Sprint(mc.EstimatedCount),
			"records_migrated": fmt.Sprint(migrated),
			"records_failed":   fmt.Sprint(failed),
		},
	})
	return nil
}
