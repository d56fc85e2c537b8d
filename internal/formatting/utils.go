package formatting

import (
	"encoding/json"
	"fmt"
	"sort"

	"mnemo/internal/api"
)

// MaxColumns caps the number of table columns for list output.
const MaxColumns = 6

// preferredColumns are shown first, in this order, when present.
var preferredColumns = []string{
	"id", "name", "title", "type", "kind", "content", "language", "project_id", "created_at", "updated_at",
}

// Columns picks the table columns for records: preferred fields present in
// any record first, then the remaining fields alphabetically, up to
// MaxColumns.
func Columns(records []api.Record) []string {
	present := map[string]bool{}
	for _, rec := range records {
		for k := range rec {
			present[k] = true
		}
	}

	var cols []string
	for _, c := range preferredColumns {
		if present[c] {
			cols = append(cols, c)
			delete(present, c)
		}
	}
	rest := make([]string, 0, len(present))
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	if len(cols) > MaxColumns {
		cols = cols[:MaxColumns]
	}
	return cols
}

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt's %v when v cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
