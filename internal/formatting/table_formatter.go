package formatting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mnemo/internal/api"
	mnemostrings "mnemo/pkg/strings"
)

// DefaultMaxCellWidth bounds table cells so long content stays on one line.
const DefaultMaxCellWidth = mnemostrings.DefaultMaxLen

// TableFormatter renders records as a rounded table.
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) *TableFormatter {
	if options.MaxCellWidth <= 0 {
		options.MaxCellWidth = DefaultMaxCellWidth
	}
	return &TableFormatter{options: options}
}

// FormatRecords prints one row per record using the columns from Columns.
func (f *TableFormatter) FormatRecords(w io.Writer, records []api.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, f.color(text.FgYellow, "No items found"))
		return err
	}

	columns := Columns(records)
	t := f.createTable(w)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = f.color(text.FgHiCyan, c)
	}
	t.AppendHeader(header)

	for _, rec := range records {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = mnemostrings.Truncate(rec.String(c), f.options.MaxCellWidth)
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d items", len(records))})

	t.Render()
	return nil
}

// FormatRecord prints every field of record as key/value rows.
func (f *TableFormatter) FormatRecord(w io.Writer, record api.Record) error {
	t := f.createTable(w)
	t.AppendHeader(table.Row{f.color(text.FgHiCyan, "KEY"), f.color(text.FgHiCyan, "VALUE")})

	for _, key := range record.Keys() {
		t.AppendRow(table.Row{key, mnemostrings.Truncate(record.String(key), 2*f.options.MaxCellWidth)})
	}

	t.Render()
	return nil
}

func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if f.options.NoColor {
		return s
	}
	return c.Sprint(s)
}
