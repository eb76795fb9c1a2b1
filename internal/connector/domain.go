package connector

import (
	"strings"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

// Capabilities is the capability set of a config-defined JSON domain.
type Capabilities = migration.Capabilities[Filter, string, Entity, Entity]

// NewCapabilities builds the source, target and transform of domain d. Every
// client gets its own breaker and limiter.
func NewCapabilities(d conf.DomainSettings, settings conf.HTTPSettings, log logger.Logger, opts ...httpclient.Option) Capabilities {
	source := httpclient.New(httpclient.ConfigFrom(d.Name+"-source", d.SourceURL, d.Token, settings), log, opts...)
	target := httpclient.New(httpclient.ConfigFrom(d.Name+"-target", d.TargetURL, d.Token, settings), log, opts...)

	return Capabilities{
		Source:    NewSourceClient(source),
		Target:    NewTargetClient(target),
		Transform: migration.TransformFunc[Entity, Entity](FieldMapTransform(d.FieldMap)),
		LegacyID:  func(key string) string { return key },
		ParseKey:  ParseKey,
	}
}

// ParseKey accepts any non-blank key.
func ParseKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", errors.Newf("empty entity key").
			Component("connector").
			Category(errors.CategoryValidation).
			Build()
	}
	return key, nil
}
