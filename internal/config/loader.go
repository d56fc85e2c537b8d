package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mnemo/pkg/logging"
)

// Environment variables that override the file.
const (
	EnvServer       = "MNEMO_SERVER"
	EnvIssuer       = "MNEMO_ISSUER"
	EnvLogLevel     = "MNEMO_LOG_LEVEL"
	EnvLogFormat    = "MNEMO_LOG_FORMAT"
	EnvCallbackPort = "MNEMO_CALLBACK_PORT"
	EnvStorageDir   = "MNEMO_STORAGE_DIR"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// Load reads configuration from configPath, then ./.env and the
// environment.
func Load(configPath string) (Config, error) {
	return LoadWithEnvFiles(configPath, DefaultEnvFile)
}

// LoadWithEnvFiles is Load with explicit dotenv files. Missing files are
// skipped. Process environment variables take precedence over dotenv values.
func LoadWithEnvFiles(configPath string, envFiles ...string) (Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	cfg := Default()
	cfg.Storage.Dir = filepath.Join(configPath, credentialsDir)

	configFilePath := filepath.Join(configPath, configFileName)
	if err := decodeFile(configFilePath, &cfg); err != nil {
		return Config{}, err
	}

	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	cfg.Server.URL = strings.TrimRight(cfg.Server.URL, "/")
	cfg.OAuth.Issuer = strings.TrimRight(cfg.OAuth.Issuer, "/")
	if cfg.Storage.Dir, err = expandHome(cfg.Storage.Dir); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", path)
			return nil
		}
		return ConfigurationError{FilePath: path, ErrorType: "io", Message: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return ConfigurationError{
			FilePath:    path,
			ErrorType:   "parse",
			Message:     err.Error(),
			Suggestions: []string{"check the YAML syntax and field names"},
		}
	}

	logging.Debug("ConfigLoader", "Loaded configuration from %s", path)
	return nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	out := map[string]string{}
	for _, file := range files {
		path, err := expandHome(file)
		if err != nil {
			return nil, err
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, ConfigurationError{FilePath: path, ErrorType: "parse", Message: err.Error()}
		}
		for k, v := range values {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
		logging.Debug("ConfigLoader", "Loaded environment from %s", path)
	}
	return out, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServer); ok && v != "" {
		cfg.Server.URL = v
	}
	if v, ok := lookup(EnvIssuer); ok {
		cfg.OAuth.Issuer = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := lookup(EnvStorageDir); ok && v != "" {
		cfg.Storage.Dir = v
	}
	if v, ok := lookup(EnvCallbackPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ConfigurationError{
				Field:     "oauth.callback_port",
				ErrorType: "env",
				Message:   fmt.Sprintf("%s must be a number, got %q", EnvCallbackPort, v),
			}
		}
		cfg.OAuth.CallbackPort = port
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
