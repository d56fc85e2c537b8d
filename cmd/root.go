package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mnemo/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by every command.
var (
	configPath     string
	serverOverride string
	logLevel       string
	quiet          bool
)

// rootCmd represents the base command for the mnemo application.
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Work with a mnemo knowledge server from the terminal",
	Long: `mnemo signs you in to a mnemo server and reads its memories, entities,
documents, code artifacts and projects.

Sign-in uses OAuth 2.0 Authorization Code with PKCE. The client registers
itself with the server on first use; nothing needs to be configured up front
beyond the server URL.

Examples:
  mnemo auth login
  mnemo list memories --limit 10
  mnemo get entities 42`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It runs the root command until it finishes or the process is interrupted.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mnemo version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.DefaultConfigPath(), "Configuration directory")
	rootCmd.PersistentFlags().StringVar(&serverOverride, "server", "", "mnemo server URL (env: MNEMO_SERVER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (env: MNEMO_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
}
