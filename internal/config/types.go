package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the mnemo backend.
type ServerConfig struct {
	URL     string        `yaml:"url" validate:"required,http_url"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries int           `yaml:"retries" validate:"gte=0,lte=10"`
	// ProbeResource is the protected collection used to detect the auth mode.
	ProbeResource string `yaml:"probe_resource" validate:"required"`
}

// OAuthConfig describes the authorization server and the login page.
type OAuthConfig struct {
	// Issuer hosts the authorize, token and register endpoints. Empty means
	// the server URL.
	Issuer           string   `yaml:"issuer" validate:"omitempty,http_url"`
	ClientName       string   `yaml:"client_name" validate:"required"`
	Scope            string   `yaml:"scope"`
	CallbackHost     string   `yaml:"callback_host" validate:"required,hostname|ip"`
	CallbackPort     int      `yaml:"callback_port" validate:"gte=1,lte=65535"`
	AuthorizePath    string   `yaml:"authorize_path" validate:"required,startswith=/"`
	TokenPath        string   `yaml:"token_path" validate:"required,startswith=/"`
	RegistrationPath string   `yaml:"registration_path" validate:"required,startswith=/"`
	Providers        []string `yaml:"providers" validate:"dive,required"`
	// AllowLegacyTokenParam accepts ?token= on the callback page.
	AllowLegacyTokenParam  bool   `yaml:"allow_legacy_token_param"`
	UnexpectedStatusPolicy string `yaml:"unexpected_status_policy" validate:"oneof=fail-open fail-closed"`
}

// StorageConfig locates the credential files.
type StorageConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// IssuerURL returns the issuer, falling back to the server URL.
func (c Config) IssuerURL() string {
	if c.OAuth.Issuer != "" {
		return c.OAuth.Issuer
	}
	return c.Server.URL
}
