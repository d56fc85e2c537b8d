// Package formatting renders API records for the terminal.
//
// Records can be printed as a table, as JSON or YAML documents, or through
// a user-supplied text/template with the sprig function library.
package formatting

import (
	"fmt"
	"io"

	"mnemo/internal/api"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable    OutputFormat = "table"    // Rich table output
	FormatJSON     OutputFormat = "json"     // JSON output
	FormatYAML     OutputFormat = "yaml"     // YAML output
	FormatTemplate OutputFormat = "template" // One text/template execution per record
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Template is the text/template source for FormatTemplate.
	Template string
	// MaxCellWidth truncates table cells. Zero uses DefaultMaxCellWidth.
	MaxCellWidth int
	// NoColor disables ANSI colors in table headers.
	NoColor bool
}

// Formatter writes records to w.
type Formatter interface {
	FormatRecords(w io.Writer, records []api.Record) error
	FormatRecord(w io.Writer, record api.Record) error
}

// ParseFormat accepts table, json or yaml. Templates are selected with
// Options.Template instead.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// New returns the formatter for options. A non-empty Template always
// selects the template formatter.
func New(options Options) (Formatter, error) {
	if options.Template != "" {
		options.Format = FormatTemplate
	}
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options), nil
	case FormatYAML:
		return NewYAMLFormatter(options), nil
	case FormatTemplate:
		return NewTemplateFormatter(options)
	case "", FormatTable:
		return NewTableFormatter(options), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", options.Format)
	}
}
