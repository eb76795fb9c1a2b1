package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tphakala/syncbridge/internal/errors"
)

// reservedDomainName collides with the admin API history route.
const reservedDomainName = "history"

// ValidateSettings checks the loaded settings and reports every problem found.
func ValidateSettings(s *Settings) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch s.Database.Type {
	case "sqlite":
		if s.Database.SQLite.Path == "" {
			add("database.sqlite.path is required")
		}
	case "mysql":
		if s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "" {
			add("database.mysql.host and database.mysql.database are required")
		}
	case "postgres":
		if s.Database.Postgres.DSN == "" {
			add("database.postgres.dsn is required")
		}
	default:
		add("database.type %q is not one of sqlite, mysql, postgres", s.Database.Type)
	}

	switch s.Queue.Backend {
	case "memory", "database":
	default:
		add("queue.backend %q is not one of memory, database", s.Queue.Backend)
	}
	if s.Queue.MaxDeliveries < 1 {
		add("queue.maxdeliveries must be at least 1")
	}
	if s.Queue.VisibilityTimeout <= 0 {
		add("queue.visibilitytimeout must be positive")
	}

	if s.Engine.Workers < 1 {
		add("engine.workers must be at least 1")
	}
	if s.Engine.PageSize < 1 {
		add("engine.pagesize must be at least 1")
	}
	if s.Engine.EstimatePageSize < 1 {
		add("engine.estimatepagesize must be at least 1")
	}
	if s.Engine.CompletionThreshold < 1 {
		add("engine.completionthreshold must be at least 1")
	}
	if s.Engine.BusyDelay < 0 || s.Engine.QuietDelay < 0 || s.Engine.RetryBaseDelay < 0 || s.Engine.RetryMaxDelay < 0 {
		add("engine delays must not be negative")
	}

	switch s.MappingStore.Backend {
	case "database":
	case "http":
		if s.MappingStore.URL != "" && !isHTTPURL(s.MappingStore.URL) {
			add("mappingstore.url must be an http(s) URL")
		}
	default:
		add("mappingstore.backend %q is not one of database, http", s.MappingStore.Backend)
	}

	if s.Sync.SelfOrigin == "" {
		add("sync.selforigin must not be empty")
	}
	if s.Sync.MQTT.QoS < 0 || s.Sync.MQTT.QoS > 2 {
		add("sync.mqtt.qos must be 0, 1 or 2")
	}
	if s.Sync.Kafka.Enabled && len(s.Sync.Kafka.Brokers) == 0 {
		add("sync.kafka.brokers is required when kafka is enabled")
	}

	seen := make(map[string]bool, len(s.Domains))
	for i, d := range s.Domains {
		if d.Name == "" {
			add("domains[%d].name is required", i)
			continue
		}
		if seen[d.Name] {
			add("domain %q is defined more than once", d.Name)
		}
		seen[d.Name] = true
		if d.Name == reservedDomainName || strings.ContainsAny(d.Name, "/?#") {
			add("domain %q: name is reserved or not usable in a URL path", d.Name)
		}
		if !isHTTPURL(d.SourceURL) {
			add("domain %q: sourceurl must be an http(s) URL", d.Name)
		}
		if !isHTTPURL(d.TargetURL) {
			add("domain %q: targeturl must be an http(s) URL", d.Name)
		}
		if d.PageSize < 0 {
			add("domain %q: pagesize must not be negative", d.Name)
		}
		if s.MappingStore.Backend == "http" && !isHTTPURL(s.EffectiveMappingURL(d)) {
			add("domain %q: mappingurl or mappingstore.url must be an http(s) URL when backend is http", d.Name)
		}
	}

	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		add("sentry.dsn is required when sentry is enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("problem_count", len(problems)).
		Build()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
