package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/pkg/logging"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))
}

func clearEnv(t *testing.T) {
	t.Helper()
	logging.Discard()
	for _, key := range []string{EnvServer, EnvIssuer, EnvLogLevel, EnvLogFormat, EnvCallbackPort, EnvStorageDir} {
		if v, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, v) })
		}
	}
}

func TestLoad_DefaultOnly(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadWithEnvFiles(dir)
	require.NoError(t, err)

	want := Default()
	want.Storage.Dir = filepath.Join(dir, credentialsDir)
	assert.Equal(t, want, cfg)
	assert.Equal(t, DefaultServerURL, cfg.IssuerURL())
	assert.True(t, cfg.OAuth.AllowLegacyTokenParam)
	assert.Equal(t, "fail-open", cfg.OAuth.UnexpectedStatusPolicy)
	assert.Equal(t, []string{"github"}, cfg.OAuth.Providers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
server:
  url: https://mnemo.example.com/
  timeout: 5s
oauth:
  issuer: https://auth.example.com
  callback_port: 9876
  providers: [google]
  allow_legacy_token_param: false
  unexpected_status_policy: fail-closed
logging:
  format: json
`)

	cfg, err := LoadWithEnvFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://mnemo.example.com", cfg.Server.URL)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 2, cfg.Server.Retries, "unset keys keep defaults")
	assert.Equal(t, "https://auth.example.com", cfg.IssuerURL())
	assert.Equal(t, 9876, cfg.OAuth.CallbackPort)
	assert.Equal(t, []string{"google"}, cfg.OAuth.Providers)
	assert.False(t, cfg.OAuth.AllowLegacyTokenParam)
	assert.Equal(t, "fail-closed", cfg.OAuth.UnexpectedStatusPolicy)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")

	cfg, err := LoadWithEnvFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "server: [unterminated")

	_, err := LoadWithEnvFiles(dir)
	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "parse", ce.ErrorType)
	assert.Equal(t, filepath.Join(dir, configFileName), ce.FilePath)
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  ulr: https://typo.example.com\n")

	_, err := LoadWithEnvFiles(dir)
	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "parse", ce.ErrorType)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  url: https://file.example.com\n")

	t.Setenv(EnvServer, "https://env.example.com")
	t.Setenv(EnvIssuer, "https://issuer.example.com")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvCallbackPort, "9000")
	t.Setenv(EnvStorageDir, filepath.Join(dir, "store"))

	cfg, err := LoadWithEnvFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	assert.Equal(t, "https://issuer.example.com", cfg.IssuerURL())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9000, cfg.OAuth.CallbackPort)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.Storage.Dir)
}

func TestLoad_InvalidCallbackPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCallbackPort, "eighty")

	_, err := LoadWithEnvFiles(t.TempDir())
	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "oauth.callback_port", ce.Field)
	assert.Equal(t, "env", ce.ErrorType)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"MNEMO_SERVER=https://dotenv.example.com\nMNEMO_LOG_LEVEL=warn\n"), 0o600))

	t.Run("dotenv applies", func(t *testing.T) {
		cfg, err := LoadWithEnvFiles(dir, envFile)
		require.NoError(t, err)
		assert.Equal(t, "https://dotenv.example.com", cfg.Server.URL)
		assert.Equal(t, "warn", cfg.Logging.Level)
		_, set := os.LookupEnv(EnvServer)
		assert.False(t, set, "dotenv values do not leak into the process environment")
	})

	t.Run("process environment wins", func(t *testing.T) {
		t.Setenv(EnvServer, "https://env.example.com")
		cfg, err := LoadWithEnvFiles(dir, envFile)
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	})

	t.Run("missing dotenv is skipped", func(t *testing.T) {
		_, err := LoadWithEnvFiles(dir, filepath.Join(dir, "absent.env"))
		assert.NoError(t, err)
	})
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
server:
  url: ftp://mnemo.example.com
oauth:
  callback_port: 70000
  unexpected_status_policy: maybe
logging:
  level: loud
`)

	_, err := LoadWithEnvFiles(dir)
	var collection ConfigurationErrorCollection
	require.True(t, errors.As(err, &collection))
	assert.ElementsMatch(t, []string{
		"server.url",
		"oauth.callback_port",
		"oauth.unexpected_status_policy",
		"logging.level",
	}, collection.Fields())
	assert.Contains(t, collection.Error(), "4 configuration errors")
	assert.Contains(t, collection.DetailedError(), "MNEMO_SERVER")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/mnemo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mnemo"), got)

	got, err = expandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
