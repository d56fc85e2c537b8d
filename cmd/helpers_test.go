package cmd

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"mnemo/internal/config"
	"mnemo/internal/testing/mock"
)

// cliEnv runs commands against a mock backend with an isolated
// configuration directory.
type cliEnv struct {
	dir     string
	backend *mock.Backend
	port    int
}

func newCLIEnv(t *testing.T, cfg mock.BackendConfig) *cliEnv {
	t.Helper()

	backend := mock.NewBackend(cfg)
	t.Cleanup(backend.Close)

	port := freePort(t)
	for _, key := range []string{config.EnvServer, config.EnvIssuer, config.EnvLogLevel, config.EnvLogFormat, config.EnvStorageDir} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvCallbackPort, strconv.Itoa(port))

	original := openBrowser
	t.Cleanup(func() { openBrowser = original })
	openBrowser = func(string) error { return nil }

	return &cliEnv{dir: t.TempDir(), backend: backend, port: port}
}

// run executes the root command with args and returns everything written
// to stdout and stderr.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	resetCommands(rootCmd, ctx)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	rootCmd.SetArgs(append([]string{
		"--config-path", e.dir,
		"--server", e.backend.URL(),
		"--log-level", "error",
	}, args...))

	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// approveInBrowser makes interactive logins complete as if the user
// approved the request in a browser.
func (e *cliEnv) approveInBrowser(t *testing.T) {
	t.Helper()
	openBrowser = func(authURL string) error {
		redirect, err := e.backend.Approve(authURL)
		if err != nil {
			return err
		}
		go func() {
			resp, err := http.Get(redirect)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

// resetCommands restores flag defaults and hands every command ctx. Cobra
// only copies the parent context into a subcommand that has none, so a
// context left over from an earlier run would otherwise stay in place.
func resetCommands(c *cobra.Command, ctx context.Context) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	c.SetContext(ctx)
	for _, sub := range c.Commands() {
		resetCommands(sub, ctx)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
