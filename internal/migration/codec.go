package migration

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/queue"
)

// encodeTask wraps a migration context in a queue message of the given kind.
func encodeTask[T any](kind TaskKind, mc Context[T]) (queue.Message, error) {
	body, err := msgpack.Marshal(&mc)
	if err != nil {
		return queue.Message{}, errors.New(fmt.Errorf("encode %s task: %w", kind, err)).
			Component("engine").
			Category(errors.CategorySerialization).
			Context("migration_id", mc.MigrationID).
			Build()
	}
	return queue.Message{
		MigrationID: mc.MigrationID,
		Kind:        string(kind),
		Control:     kind.control(),
		Body:        body,
	}, nil
}

// decodeTask reads the migration context of msg.
func decodeTask[T any](msg queue.Message) (Context[T], error) {
	var mc Context[T]
	if err := msgpack.Unmarshal(msg.Body, &mc); err != nil {
		return mc, errors.New(fmt.Errorf("decode %s task %s: %w", msg.Kind, msg.ID, err)).
			Component("engine").
			Category(errors.CategorySerialization).
			Context("migration_id", msg.MigrationID).
			Build()
	}
	return mc, nil
}

// decodePayload decodes a message body without knowing its type, for operator display.
func decodePayload(body []byte) any {
	var payload map[string]any
	if err := msgpack.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload
}
