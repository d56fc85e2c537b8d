package oauth

import (
	"errors"
	"fmt"
)

// ClientRegistrationError is returned when the registration endpoint answers
// with a non-success status.
type ClientRegistrationError struct {
	StatusCode int
	Body       string
}

func (e *ClientRegistrationError) Error() string {
	return fmt.Sprintf("client registration failed with status %d", e.StatusCode)
}

// TokenExchangeError is returned when the token endpoint rejects an
// authorization code exchange. Body holds the raw response for diagnostics.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
}

// IsClientRegistrationError reports whether err wraps a ClientRegistrationError.
func IsClientRegistrationError(err error) bool {
	var target *ClientRegistrationError
	return errors.As(err, &target)
}

// IsTokenExchangeError reports whether err wraps a TokenExchangeError.
func IsTokenExchangeError(err error) bool {
	var target *TokenExchangeError
	return errors.As(err, &target)
}
