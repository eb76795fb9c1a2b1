package history

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
)

type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatYAML  format = "yaml"
)

func parseFormat(s string) (format, error) {
	switch f := format(s); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	}
	return "", errors.Newf("unknown output format %q", s).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}

func render(w io.Writer, f format, rows []migration.History) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderTable(w, rows)
	}
}

func renderTable(w io.Writer, rows []migration.History) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tDOMAIN\tSTATUS\tSTARTED\tENDED\tESTIMATED\tMIGRATED\tFAILED")
	for _, h := range rows {
		ended := "-"
		if h.WhenEnded != nil {
			ended = h.WhenEnded.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			h.MigrationID, h.DomainType, h.Status,
			h.WhenStarted.Format(time.DateTime), ended,
			h.EstimatedRecordCount, h.RecordsMigrated, h.RecordsFailed)
	}
	return tw.Flush()
}
