// Package api is the generic HTTP client for the mnemo resource API.
//
// Every request reads the bearer token from the credential store at send
// time. A 401 response clears the stored token and raises
// events.TopicUnauthorized exactly once per rejected request; the session
// manager reacts to that signal. Callers see the rejection as an error
// matching ErrUnauthorized.
//
// The resource endpoints are plain request/response contracts:
//
//	GET /api/{resource}?limit=&offset=&project_id=
//	GET /api/{resource}/{id}
//	GET /api/graph?project_id=
//
// List responses may be a bare JSON array or an {"items": [...]} envelope.
//
// Probe is the one call that bypasses the unauthorized signal. The auth
// mode detector uses it to classify the server and handles 401 itself.
package api
