package formatting

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"mnemo/internal/api"
)

// TemplateFormatter executes a text/template once per record. Templates see
// the record fields directly, e.g. {{ .id }} or {{ .title | upper }}, and
// have the sprig function library available.
type TemplateFormatter struct {
	options Options
	tmpl    *template.Template
}

// NewTemplateFormatter parses options.Template.
func NewTemplateFormatter(options Options) (*TemplateFormatter, error) {
	src := options.Template
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	tmpl, err := template.New("record").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return &TemplateFormatter{options: options, tmpl: tmpl}, nil
}

// FormatRecords executes the template for each record in order.
func (f *TemplateFormatter) FormatRecords(w io.Writer, records []api.Record) error {
	for i, rec := range records {
		if err := f.tmpl.Execute(w, map[string]any(rec)); err != nil {
			return fmt.Errorf("failed to render record %d: %w", i, err)
		}
	}
	return nil
}

// FormatRecord executes the template once.
func (f *TemplateFormatter) FormatRecord(w io.Writer, record api.Record) error {
	if err := f.tmpl.Execute(w, map[string]any(record)); err != nil {
		return fmt.Errorf("failed to render record: %w", err)
	}
	return nil
}
