package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mnemo/internal/auth"
	"mnemo/internal/credentials"
	"mnemo/internal/events"
	mnemostrings "mnemo/pkg/strings"
)

// Status-specific flags
var (
	statusWatch bool
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the authentication status for the configured server.

The stored token is checked against the server, so a session revoked on the
server side shows as signed out. With --watch the command keeps running and
prints the status again whenever another mnemo process signs in or out.

Examples:
  mnemo auth status
  mnemo auth status --watch`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep running and print changes")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	m, s, err := rt.detectSession(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	printSessionStatus(out, rt, s)
	if !statusWatch {
		return nil
	}

	cancel := m.Subscribe(func(s auth.Session) {
		fmt.Fprintln(out)
		printSessionStatus(out, rt, s)
	})
	defer cancel()

	watcher := credentials.NewWatcher(credentials.WatcherConfig{
		Path: rt.backend.Path(),
		OnChange: func() {
			rt.bus.Publish(events.TopicCredentialsChanged)
		},
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch credentials: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	authPrintln(text.FgHiBlack.Sprint("\nWatching for changes, press Ctrl+C to stop."))
	<-ctx.Done()
	return nil
}

// printSessionStatus prints the session in the auth status layout.
func printSessionStatus(w io.Writer, rt *runtime, s auth.Session) {
	fmt.Fprintln(w, "mnemo server")
	fmt.Fprintf(w, "  Endpoint:  %s\n", rt.cfg.Server.URL)
	fmt.Fprintf(w, "  Status:    %s\n", formatSessionStatus(s))
	fmt.Fprintf(w, "  Mode:      %s\n", s.AuthMode)

	if s.User != nil {
		fmt.Fprintf(w, "  User:      %s\n", displayName(s.User))
	}
	if s.Token != "" {
		fmt.Fprintf(w, "  Token:     %s\n", mnemostrings.Redact(s.Token))
		if rt.store.RefreshToken() != "" {
			fmt.Fprintf(w, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
		} else {
			fmt.Fprintf(w, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
		}
	}
	if !s.IsAuthenticated && len(s.OAuthProviders) > 0 {
		fmt.Fprintf(w, "  Providers: %s\n", strings.Join(s.OAuthProviders, ", "))
	}
	if ws := rt.store.Workspace(); ws != "" {
		fmt.Fprintf(w, "  Workspace: %s\n", ws)
	}

	switch {
	case s.IsAuthenticated:
	case s.AuthMode == auth.AuthModeUnknown:
		fmt.Fprintln(w, "             Check that the server is running and reachable.")
	default:
		fmt.Fprintln(w, "             Run: mnemo auth login")
	}
}

// formatSessionStatus formats the status line with colors.
func formatSessionStatus(s auth.Session) string {
	switch {
	case s.IsAuthenticated && s.AuthMode == auth.AuthModeDisabled && s.Token == "":
		return text.FgHiBlack.Sprint("No authentication required")
	case s.IsAuthenticated:
		return text.FgGreen.Sprint("Authenticated")
	case s.AuthMode == auth.AuthModeUnknown:
		return text.FgRed.Sprint("Unreachable")
	default:
		return text.FgYellow.Sprint("Not authenticated")
	}
}
