package logger

import (
	"regexp"
	"strings"
)

const sqlUnknown = "unknown"

var sqlPatterns = []struct {
	operation string
	pattern   *regexp.Regexp
}{
	{"select", regexp.MustCompile(`(?is)^\s*SELECT\s+.*?\s+FROM\s+['"\x60]?(\w+)['"\x60]?`)},
	{"insert", regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+['"\x60]?(\w+)['"\x60]?`)},
	{"update", regexp.MustCompile(`(?i)^\s*UPDATE\s+['"\x60]?(\w+)['"\x60]?`)},
	{"delete", regexp.MustCompile(`(?i)^\s*DELETE\s+FROM\s+['"\x60]?(\w+)['"\x60]?`)},
	{"create", regexp.MustCompile(`(?i)^\s*CREATE\s+(?:UNIQUE\s+)?(?:TABLE|INDEX)\s+(?:IF\s+NOT\s+EXISTS\s+)?['"\x60]?(\w+)['"\x60]?`)},
	{"alter", regexp.MustCompile(`(?i)^\s*ALTER\s+TABLE\s+['"\x60]?(\w+)['"\x60]?`)},
}

// parseSQLOperation extracts the statement kind and the first table it names.
func parseSQLOperation(sql string) (operation, table string) {
	sql = strings.TrimSpace(sql)
	for _, p := range sqlPatterns {
		if m := p.pattern.FindStringSubmatch(sql); len(m) > 1 {
			return p.operation, m[1]
		}
	}
	return sqlUnknown, sqlUnknown
}
