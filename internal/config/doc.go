// Package config loads mnemo's configuration.
//
// Configuration is layered, later sources winning:
//
//  1. built-in defaults (see Default)
//  2. {config_dir}/config.yaml
//  3. a .env file in the working directory, if present
//  4. MNEMO_* environment variables
//
// The default configuration directory is ~/.config/mnemo and can be changed
// with the --config-path flag. The merged result is validated before use.
//
// # Example config.yaml
//
//	server:
//	  url: https://mnemo.example.com
//	  timeout: 30s
//	oauth:
//	  callback_port: 8765
//	  providers: [github, google]
//	  unexpected_status_policy: fail-closed
//	logging:
//	  level: debug
package config
