package formatting

import (
	"encoding/json"
	"io"

	"mnemo/internal/api"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) *JSONFormatter {
	return &JSONFormatter{options: options}
}

// FormatRecords writes records as one indented JSON array.
func (f *JSONFormatter) FormatRecords(w io.Writer, records []api.Record) error {
	if records == nil {
		records = []api.Record{}
	}
	return f.encode(w, records)
}

// FormatRecord writes record as an indented JSON object.
func (f *JSONFormatter) FormatRecord(w io.Writer, record api.Record) error {
	return f.encode(w, record)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
