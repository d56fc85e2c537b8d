// Package credentials persists the client-side authentication material for
// one mnemo server: the access and refresh tokens, the dynamically
// registered OAuth client, the in-flight PKCE verifier and state, and the
// last selected workspace.
//
// Storage is split in two layers. A Backend is a flat string key/value
// store (MemoryBackend for tests, FileBackend for the CLI). Store wraps a
// Backend with typed accessors and implements Repository, the narrow
// interface the auth and api packages depend on.
//
// # File layout
//
// FileBackend keeps one JSON object per server:
//
//	~/.config/mnemo/credentials/{sha256(server)[:16]}.json
//
// The directory is created 0700 and the file is written 0600 by atomic
// rename. Values are never logged.
//
// # Cross-process changes
//
// Several mnemo processes may share a credentials file. Watcher reports
// changes made by other processes so a long-running command can resync its
// session (see auth.Manager.Resync).
package credentials
