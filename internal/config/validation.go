package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg and returns a ConfigurationErrorCollection listing
// every invalid field.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	var collection ConfigurationErrorCollection
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		collection.Add(ConfigurationError{
			Field:       field,
			ErrorType:   "validation",
			Message:     describe(fe),
			Suggestions: suggestionsFor(field),
		})
	}
	return collection
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return fmt.Sprintf("must be an http or https URL, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q, got %q", fe.Param(), fe.Value())
	case "hostname|ip":
		return fmt.Sprintf("must be a host name or IP address, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func suggestionsFor(field string) []string {
	switch field {
	case "server.url":
		return []string{"set server.url in config.yaml or export MNEMO_SERVER"}
	case "oauth.issuer":
		return []string{"leave oauth.issuer empty to use the server URL"}
	case "oauth.callback_port":
		return []string{"pick a free port and keep it stable so the registered client stays valid"}
	case "logging.level":
		return []string{"use debug, info, warn or error"}
	}
	return nil
}
