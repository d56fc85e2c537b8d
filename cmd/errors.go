package cmd

import "fmt"

// AuthRequiredError indicates the command needs a signed-in session.
type AuthRequiredError struct {
	// Server is the URL that requires authentication.
	Server string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authentication required for %s

To authenticate, run:
  mnemo auth login

To check current authentication status:
  mnemo auth status`, e.Server)
}

// AuthFailedError indicates a sign-in attempt did not produce a session.
type AuthFailedError struct {
	// Server is the URL where authentication failed.
	Server string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed for %s: %v

To retry authentication, run:
  mnemo auth login`, e.Server, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// ServerUnreachableError indicates the server could not be asked whether
// the session is valid.
type ServerUnreachableError struct {
	Server string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *ServerUnreachableError) Error() string {
	return fmt.Sprintf(`Cannot reach mnemo server at %s

Check that the server is running and that --server or MNEMO_SERVER is correct.`, e.Server)
}
