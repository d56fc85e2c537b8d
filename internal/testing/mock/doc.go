// Package mock provides a fake mnemo backend for tests.
//
// Backend serves the endpoints the client talks to from one httptest
// server:
//
//   - /.well-known/oauth-authorization-server (RFC 8414 metadata)
//   - /register (RFC 7591 dynamic client registration)
//   - /authorize and /token (authorization code grant with S256 PKCE)
//   - /api/{resource}, /api/{resource}/{id} and /api/graph
//
// Authorization codes are single use and bound to the client, redirect URI
// and code challenge they were issued for. Access tokens are HS256 JWTs
// carrying sub, email, name and iat, so the client's identity parsing is
// exercised end to end.
//
// Tests script failures through BackendConfig and the Set* methods and
// assert on request counters:
//
//	backend := mock.NewBackend(mock.BackendConfig{RequireAuth: true})
//	defer backend.Close()
//
//	redirect, err := backend.Approve(authURL)
//	...
//	assert.Equal(t, 1, backend.Requests("/token"))
package mock
