// Package syncevents feeds change events from MQTT and Kafka into the migration
// engines. Each configured domain listens on its own topic.
package syncevents

import (
	"context"

	"github.com/tphakala/syncbridge/internal/migration"
)

// Handler applies one JSON change event. migration.Runner satisfies it.
type Handler interface {
	HandleSyncPayload(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

func (f HandlerFunc) HandleSyncPayload(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Route binds a topic to the handler of its domain.
type Route struct {
	Domain  string
	Topic   string
	Handler Handler
}

// RoutesFor returns one route per runner whose domain has a sync topic.
func RoutesFor(runners []migration.Runner, topics map[string]string) []Route {
	var routes []Route
	for _, r := range runners {
		topic := topics[r.DomainType()]
		if topic == "" {
			continue
		}
		routes = append(routes, Route{Domain: r.DomainType(), Topic: topic, Handler: r})
	}
	return routes
}
