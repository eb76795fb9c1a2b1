package migration

import (
	"context"
	"fmt"

	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/queue"
)

// processPage re-fetches one page and fans out a PROCESS_ENTITY task per key. The
// whole page is skipped once cancellation has been requested.
func (e *Engine[F, K, E, R]) processPage(ctx context.Context, msg queue.Message) error {
	mc, err := decodeTask[Page[F]](msg)
	if err != nil {
		return err
	}
	page := mc.Body

	keys, err := e.caps.Source.GetPage(ctx, page.Filter, page.PageNumber, page.PageSize)
	if err != nil {
		return fmt.Errorf("fetch page %d: %w", page.PageNumber, err)
	}

	h, err := e.history.Get(ctx, mc.MigrationID)
	if err != nil {
		return err
	}
	if h.Status != StatusStarted {
		e.log.Info("skipping page of migration that is no longer running",
			logger.String("migration_id", mc.MigrationID),
			logger.Int("page", page.PageNumber),
			logger.String("status", string(h.Status)))
		e.telemetry.Track(ctx, Event{
			Name:        EventPageSkipped,
			MigrationID: mc.MigrationID,
			DomainType:  e.cfg.DomainType,
			Attributes: map[string]string{
				"page":   fmt.Sprint(page.PageNumber),
				"status": string(h.Status),
			},
		})
		return nil
	}

	for _, key := range keys {
		if err := send(ctx, e.queue, TaskProcessEntity, WithBody(mc, key), 0); err != nil {
			return err
		}
	}

	e.log.Debug("page fanned out",
		logger.String("migration_id", mc.MigrationID),
		logger.Int("page", page.PageNumber),
		logger.Int("entities", len(keys)))
	return nil
}
