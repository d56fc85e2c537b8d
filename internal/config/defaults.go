package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultServerURL is used when no server is configured.
	DefaultServerURL = "http://localhost:8000"

	// DefaultCallbackPort matches the loopback page default.
	DefaultCallbackPort = 8765

	userConfigDir  = ".config/mnemo"
	credentialsDir = "credentials"
	configFileName = "config.yaml"
)

// Default returns the built-in configuration. Storage lives under the
// configuration directory.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:           DefaultServerURL,
			Timeout:       30 * time.Second,
			Retries:       2,
			ProbeResource: "memories",
		},
		OAuth: OAuthConfig{
			ClientName:             "mnemo CLI",
			Scope:                  "user",
			CallbackHost:           "127.0.0.1",
			CallbackPort:           DefaultCallbackPort,
			AuthorizePath:          "/authorize",
			TokenPath:              "/token",
			RegistrationPath:       "/register",
			Providers:              []string{"github"},
			AllowLegacyTokenParam:  true,
			UnexpectedStatusPolicy: "fail-open",
		},
		Storage: StorageConfig{
			Dir: filepath.Join(DefaultConfigPath(), credentialsDir),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfigPath returns ~/.config/mnemo, or a relative .mnemo when the
// home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mnemo"
	}
	return filepath.Join(home, userConfigDir)
}
