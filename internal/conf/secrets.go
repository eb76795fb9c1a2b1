package conf

import (
	"fmt"
	"os"

	"github.com/tphakala/syncbridge/internal/secrets"
)

type secretField struct {
	name  string
	value *string
}

// resolveSecrets replaces credential fields holding ${VAR} references or
// file: paths with their effective values.
func resolveSecrets(s *Settings) error {
	fields := []secretField{
		{"database.mysql.password", &s.Database.MySQL.Password},
		{"database.postgres.dsn", &s.Database.Postgres.DSN},
		{"mappingstore.token", &s.MappingStore.Token},
		{"sync.mqtt.password", &s.Sync.MQTT.Password},
		{"sentry.dsn", &s.Sentry.DSN},
	}
	for i := range s.Domains {
		fields = append(fields, secretField{fmt.Sprintf("domains[%d].token", i), &s.Domains[i].Token})
	}
	for i := range s.Notify.URLs {
		fields = append(fields, secretField{fmt.Sprintf("notify.urls[%d]", i), &s.Notify.URLs[i]})
	}

	for _, f := range fields {
		res, err := secrets.Resolve(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		if res.Permissive {
			fmt.Fprintf(os.Stderr, "WARNING: secret file for %s is readable by group or others: %s\n", f.name, res.File)
		}
		*f.value = res.Value
	}
	return nil
}
