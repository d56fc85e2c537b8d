package formatting

import (
	"io"

	"gopkg.in/yaml.v3"

	"mnemo/internal/api"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) *YAMLFormatter {
	return &YAMLFormatter{options: options}
}

// FormatRecords writes records as a YAML sequence.
func (f *YAMLFormatter) FormatRecords(w io.Writer, records []api.Record) error {
	if records == nil {
		records = []api.Record{}
	}
	return f.encode(w, records)
}

// FormatRecord writes record as a YAML mapping.
func (f *YAMLFormatter) FormatRecord(w io.Writer, record api.Record) error {
	return f.encode(w, record)
}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
