// Package logging provides the structured logger used across mnemo.
//
// It is a thin layer over log/slog that tags every entry with a subsystem
// name and formats messages printf-style:
//
//	logging.InitForCLI(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Auth", "Registered OAuth client for %s", redirectURI)
//	logging.Debug("Credentials", "Loaded %s", path)
//	logging.Error("API", err, "Request to %s failed", path)
//
// Security-relevant credential operations go through Audit, which writes
// an INFO entry prefixed with SECURITY_AUDIT. Callers must never pass token,
// verifier, state or client secret values to any logging function; log
// lengths or presence instead.
package logging
