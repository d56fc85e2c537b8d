// Package auth implements the client side of the mnemo login flow:
// OAuth 2.0 Authorization Code with PKCE against a dynamically registered
// public client, plus detection of how (and whether) the server expects
// callers to authenticate.
//
// The Manager owns the Session. It is the only writer: the detector, the
// callback orchestrator, Login, Logout, SetToken and the unauthorized
// signal handler all mutate it through the Manager, and subscribers get a
// snapshot after every transition.
//
// A Location stands in for the page the flow runs in. Origin decides the
// redirect URI (Origin + "/"), Query carries callback parameters, and
// Navigate hands the authorization URL to the user agent. The loopback
// package provides the interactive implementation; StaticLocation serves
// pasted callback URLs and tests.
//
// Start resolves the callback shape in order: legacy token parameter,
// provider error, code and state, nothing. Every branch strips the query
// and leaves the session with IsLoading false.
package auth
