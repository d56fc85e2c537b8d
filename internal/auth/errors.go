package auth

import "errors"

var (
	// ErrCallbackInProgress is returned when a callback is already being
	// exchanged. The second invocation changes nothing.
	ErrCallbackInProgress = errors.New("oauth callback already in progress")

	// ErrStateMismatch is returned when the callback state does not match
	// the stored state. The code is never exchanged.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrFlowMaterialMissing is returned when the PKCE verifier or the
	// registered client is gone by the time the callback arrives.
	ErrFlowMaterialMissing = errors.New("oauth flow material missing")

	// ErrAuthorizationDenied wraps an error returned by the authorization
	// server on the redirect.
	ErrAuthorizationDenied = errors.New("authorization denied")
)
