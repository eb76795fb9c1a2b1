package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/syncbridge/internal/errors"
)

// isDuplicateKey reports whether err is a unique constraint violation. GORM's
// TranslateError covers the supported dialects; the message checks catch drivers
// or wrappers that bypass translation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value")
}

// dbError wraps a failed database operation.
func dbError(err error, operation, table string) error {
	return errors.New(fmt.Errorf("%s %s: %w", operation, table, err)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("table", table).
		Build()
}
