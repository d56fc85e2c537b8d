package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mnemo/internal/loopback"
)

// Login-specific flags
var (
	loginNoBrowser bool
	loginTimeout   time.Duration
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the mnemo server",
	Long: `Sign in to the configured mnemo server with OAuth.

mnemo starts a local page on the loopback callback address, registers a
client for that address if it has none, and opens the authorization page in
your browser. The server redirects back to the local page when you approve,
and mnemo exchanges the code for a token.

Examples:
  mnemo auth login                     # Open the browser
  mnemo auth login --no-browser        # Print the URL to open manually`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	authLoginCmd.Flags().DurationVar(&loginTimeout, "timeout", loopback.CallbackTimeout, "How long to wait for the browser to come back")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	page := loopback.New(loopback.Config{
		Host:      rt.cfg.OAuth.CallbackHost,
		Port:      rt.cfg.OAuth.CallbackPort,
		NoBrowser: loginNoBrowser,
		Out:       cmd.ErrOrStderr(),
		Opener:    openBrowser,
	})
	if err := page.Start(waitCtx); err != nil {
		return err
	}
	defer page.Stop()

	m, err := rt.newManager(page)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Login(ctx); err != nil {
		return &AuthFailedError{Server: rt.cfg.Server.URL, Reason: err}
	}
	if loginNoBrowser {
		authPrint("If the browser runs elsewhere, paste the address it lands on into:\n  mnemo auth callback '<url>'\n\n")
	}

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Waiting for the browser to finish signing in..."
		s.Start()
	}

	_, err = page.Wait(waitCtx)
	if err != nil {
		if s != nil {
			s.FinalMSG = text.FgRed.Sprint("Sign-in did not complete") + "\n"
			s.Stop()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no redirect received within %s", loginTimeout)
		}
		return &AuthFailedError{Server: rt.cfg.Server.URL, Reason: err}
	}

	res := m.Start(ctx)
	if s != nil {
		s.Stop()
	}
	return finishLogin(rt, res, m.Session())
}
