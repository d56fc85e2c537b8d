package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mnemo/internal/auth"
	"mnemo/internal/formatting"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for mnemo",
	Long: `Manage authentication for mnemo CLI commands.

The auth command group signs you in to the configured mnemo server, shows
the current session, and signs you out again.

Examples:
  mnemo auth login                     # Sign in through the browser
  mnemo auth login --no-browser        # Print the sign-in URL instead
  mnemo auth callback '<redirect-url>' # Finish a sign-in from another machine
  mnemo auth status                    # Show authentication status
  mnemo auth status --watch            # Follow changes made by other processes
  mnemo auth whoami                    # Show current identity
  mnemo auth logout                    # Forget the stored tokens`,
}

// authCallbackCmd represents the auth callback command
var authCallbackCmd = &cobra.Command{
	Use:   "callback <redirect-url>",
	Short: "Complete a sign-in from a pasted redirect URL",
	Long: `Complete a sign-in using the full URL the authorization server redirected
the browser to.

Use this when the browser runs on another machine than mnemo: start
'mnemo auth login --no-browser', open the printed URL wherever a browser is
available, and paste the address the browser ends up on (it starts with the
loopback origin and carries code and state parameters).

Examples:
  mnemo auth callback 'http://127.0.0.1:8765/?code=...&state=...'`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthCallback,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored authentication tokens",
	Long: `Clear the stored access and refresh tokens for the configured server.

The server is not contacted. The registered client is kept so the next
sign-in does not register again.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show current authenticated identity",
	Long: `Show the identity carried by the current session.

Exits with code 2 when no session is available.`,
	Args: cobra.NoArgs,
	RunE: runAuthWhoami,
}

var whoamiOutput string

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authCallbackCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authWhoamiCmd.Flags().StringVarP(&whoamiOutput, "output", "o", "text", "Output format: text or json")
}

func runAuthCallback(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	loc, err := auth.ParseCallbackURL(args[0])
	if err != nil {
		return err
	}
	if loc.Origin() != rt.callbackOrigin() {
		authPrint("%s The URL origin %s differs from the configured callback origin %s\n",
			text.FgYellow.Sprint("!"), loc.Origin(), rt.callbackOrigin())
	}

	m, err := rt.newManager(loc)
	if err != nil {
		return err
	}
	defer m.Close()

	res := m.Start(cmd.Context())
	if res.Shape == auth.ShapeNone {
		return fmt.Errorf("the URL carries no authorization response (expected code and state parameters)")
	}
	return finishLogin(rt, res, m.Session())
}

// finishLogin reports the outcome of a Start that handled a redirect.
func finishLogin(rt *runtime, res auth.StartResult, s auth.Session) error {
	if res.Err != nil {
		return &AuthFailedError{Server: rt.cfg.Server.URL, Reason: res.Err}
	}
	if !s.IsAuthenticated {
		return &AuthFailedError{Server: rt.cfg.Server.URL, Reason: fmt.Errorf("the server did not accept the new session")}
	}

	authPrint("%s Signed in to %s", text.FgGreen.Sprint("✓"), rt.cfg.Server.URL)
	if s.User != nil && s.User.Email != "" {
		authPrint(" as %s", s.User.Email)
	}
	authPrintln()
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	m, err := rt.newManager(auth.NewStaticLocation(rt.callbackOrigin(), nil))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Logout(); err != nil {
		return fmt.Errorf("failed to clear stored tokens: %w", err)
	}
	authPrint("Signed out of %s\n", rt.cfg.Server.URL)
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	m, s, err := requireSession(cmd.Context(), rt)
	if err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	if whoamiOutput == "json" {
		fmt.Fprintln(out, formatting.PrettyJSON(s))
		return nil
	}

	switch {
	case s.AuthMode == auth.AuthModeDisabled && s.Token == "":
		fmt.Fprintf(out, "Authentication is disabled on %s\n", rt.cfg.Server.URL)
	case s.User == nil:
		fmt.Fprintf(out, "Signed in to %s (the token carries no identity claims)\n", rt.cfg.Server.URL)
	default:
		fmt.Fprintf(out, "User:    %s\n", displayName(s.User))
		if s.User.ID != "" {
			fmt.Fprintf(out, "ID:      %s\n", s.User.ID)
		}
		if s.User.CreatedAt != nil {
			fmt.Fprintf(out, "Since:   %s\n", s.User.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(out, "Server:  %s\n", rt.cfg.Server.URL)
	}
	return nil
}

func displayName(u *auth.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}
