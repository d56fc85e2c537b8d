package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one problem with the loaded configuration.
type ConfigurationError struct {
	FilePath    string   `json:"filePath,omitempty"` // file that caused the error, if any
	Field       string   `json:"field,omitempty"`    // dotted yaml path, e.g. oauth.callback_port
	ErrorType   string   `json:"errorType"`          // io, parse, env or validation
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (ce ConfigurationError) Error() string {
	switch {
	case ce.Field != "":
		return fmt.Sprintf("%s: %s", ce.Field, ce.Message)
	case ce.FilePath != "":
		return fmt.Sprintf("%s: %s", ce.FilePath, ce.Message)
	default:
		return ce.Message
	}
}

// DetailedError returns a multi-line message including suggestions.
func (ce ConfigurationError) DetailedError() string {
	parts := []string{fmt.Sprintf("Configuration error (%s): %s", ce.ErrorType, ce.Error())}
	if ce.FilePath != "" && ce.Field != "" {
		parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, s := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", s))
		}
	}
	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds every problem found in one load.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection.
func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	default:
		return fmt.Sprintf("%d configuration errors: %s (and %d more)",
			len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
	}
}

// HasErrors returns true if there are any errors in the collection.
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Add appends err.
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// Fields returns the fields with errors, in order.
func (cec *ConfigurationErrorCollection) Fields() []string {
	var out []string
	for _, e := range cec.Errors {
		if e.Field != "" {
			out = append(out, e.Field)
		}
	}
	return out
}

// DetailedError returns every error's detailed message.
func (cec *ConfigurationErrorCollection) DetailedError() string {
	parts := make([]string, 0, len(cec.Errors))
	for _, e := range cec.Errors {
		parts = append(parts, e.DetailedError())
	}
	return strings.Join(parts, "\n\n")
}
