// Package loopback serves the local page the authorization server redirects
// back to during an interactive login.
//
// A Server implements auth.Location: its origin is the loopback address it
// listens on, its query is the query of the first redirect it receives, and
// navigating opens the system browser (or prints the URL when no browser is
// wanted). The server answers a single redirect and then stops accepting
// new ones.
package loopback
