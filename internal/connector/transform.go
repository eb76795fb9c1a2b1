package connector

import (
	"context"
	"strings"
)

// FieldMapTransform renames source fields to target fields. Keys are matched
// case-insensitively; a field mapped to "" is dropped and unmapped fields are
// copied unchanged.
func FieldMapTransform(fieldMap map[string]string) func(context.Context, Entity) (Entity, error) {
	renames := make(map[string]string, len(fieldMap))
	for from, to := range fieldMap {
		renames[strings.ToLower(from)] = to
	}

	return func(_ context.Context, e Entity) (Entity, error) {
		out := make(Entity, len(e))
		for k, v := range e {
			to, mapped := renames[strings.ToLower(k)]
			switch {
			case !mapped:
				out[k] = v
			case to != "":
				out[to] = v
			}
		}
		return out, nil
	}
}
