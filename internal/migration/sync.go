package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
)

// Sync replicates one source change event into the target using the same
// idempotent write as migrations. Events carrying the self origin marker were
// produced by this system and are ignored to break the replication loop.
func (e *Engine[F, K, E, R]) Sync(ctx context.Context, ev SyncEvent[K]) (Outcome, error) {
	legacyID := e.caps.LegacyID(ev.Key)
	base := Event{
		DomainType: e.cfg.DomainType,
		LegacyID:   legacyID,
		Attributes: map[string]string{"event_type": string(ev.Type), "origin": ev.Origin},
	}

	if ev.Origin == e.cfg.SelfOrigin {
		e.log.Debug("ignoring self-originated sync event", logger.String("legacy_id", legacyID))
		e.track(ctx, base, EventSyncIgnored, OutcomeIgnored, "", nil)
		return OutcomeIgnored, nil
	}
	if !ev.Type.Valid() {
		err := errors.Newf("unknown sync event type %q", ev.Type).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
		e.track(ctx, base, EventSyncFailed, "", "", err)
		return "", err
	}

	res, err := e.writeEntity(ctx, writeRequest[K]{key: ev.Key, mappingType: MappingSourceCreated})
	if err != nil {
		if ev.Type == SyncDeleted && errors.IsNotFound(err) {
			e.track(ctx, base, EventSyncProcessed, OutcomeSkipped, "", nil)
			return OutcomeSkipped, nil
		}
		e.log.Error("sync event failed",
			logger.String("legacy_id", legacyID),
			logger.String("event_type", string(ev.Type)),
			logger.Error(err))
		e.track(ctx, base, EventSyncFailed, "", "", err)
		return "", err
	}

	e.track(ctx, base, EventSyncProcessed, res.outcome, res.newID, nil)
	return res.outcome, nil
}

func (e *Engine[F, K, E, R]) track(ctx context.Context, ev Event, name string, outcome Outcome, newID string, err error) {
	ev.Name = name
	ev.Outcome = outcome
	ev.NewID = newID
	ev.Err = err
	e.telemetry.Track(ctx, ev)
}

// Repair runs the synchronisation algorithm for one key on behalf of an operator.
// Unlike sync events, a key missing from the source is returned as an error.
func (e *Engine[F, K, E, R]) Repair(ctx context.Context, key K) (Outcome, error) {
	return e.Sync(ctx, SyncEvent[K]{Type: SyncUpdated, Key: key, Origin: RepairOrigin})
}

// syncPayload is the JSON shape of change events on the sync transports.
type syncPayload struct {
	EventType string `json:"eventType"`
	Key       string `json:"key"`
	Origin    string `json:"origin"`
}

// DecodeSyncEvent parses a JSON change event and its key.
func DecodeSyncEvent[K any](payload []byte, parseKey func(string) (K, error)) (SyncEvent[K], error) {
	var ev SyncEvent[K]
	var p syncPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ev, errors.New(fmt.Errorf("decode sync event: %w", err)).
			Component("sync").
			Category(errors.CategoryValidation).
			Build()
	}

	ev.Type = SyncEventType(strings.ToUpper(p.EventType))
	if !ev.Type.Valid() {
		return ev, errors.Newf("unknown sync event type %q", p.EventType).
			Component("sync").
			Category(errors.CategoryValidation).
			Build()
	}
	if p.Key == "" {
		return ev, errors.Newf("sync event has no key").
			Component("sync").
			Category(errors.CategoryValidation).
			Build()
	}

	key, err := parseKey(p.Key)
	if err != nil {
		return ev, errors.New(fmt.Errorf("parse sync event key %q: %w", p.Key, err)).
			Component("sync").
			Category(errors.CategoryValidation).
			Build()
	}
	ev.Key = key
	ev.Origin = p.Origin
	return ev, nil
}

// HandleSyncPayload decodes a JSON change event and applies it.
func (e *Engine[F, K, E, R]) HandleSyncPayload(ctx context.Context, payload []byte) error {
	if e.caps.ParseKey == nil {
		return errors.Newf("domain %s cannot parse keys", e.cfg.DomainType).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}
	ev, err := DecodeSyncEvent(payload, e.caps.ParseKey)
	if err != nil {
		e.telemetry.Track(ctx, Event{Name: EventSyncFailed, DomainType: e.cfg.DomainType, Err: err})
		return err
	}
	_, err = e.Sync(ctx, ev)
	return err
}
