package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"mnemo/internal/api"
	"mnemo/internal/auth"
	"mnemo/internal/config"
	"mnemo/internal/credentials"
	"mnemo/internal/events"
	"mnemo/internal/loopback"
	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

// DefaultStatusCheckTimeout bounds the session check made before API commands.
const DefaultStatusCheckTimeout = 10 * time.Second

// openBrowser opens authorization URLs during interactive logins.
var openBrowser = loopback.OpenBrowser

// runtime is the wiring shared by every command for one server.
type runtime struct {
	cfg     config.Config
	backend *credentials.FileBackend
	store   *credentials.Store
	bus     *events.Bus
	oauth   *oauth.Client
	api     *api.Client
}

// loadConfig loads configuration and applies the global flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if serverOverride != "" {
		cfg.Server.URL = strings.TrimRight(serverOverride, "/")
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return config.Config{}, err
	}
	logging.InitForCLI(level, cfg.Logging.Format, os.Stderr)
	return cfg, nil
}

// newRuntime builds the credential store, bus and clients for the
// configured server.
func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, err := credentials.NewFileBackend(cfg.Storage.Dir, cfg.Server.URL)
	if err != nil {
		return nil, err
	}
	store := credentials.NewStore(backend, cfg.Server.URL)
	bus := events.NewBus()

	httpClient := &http.Client{Timeout: cfg.Server.Timeout}
	oauthClient := oauth.NewClient(oauth.WithHTTPClient(httpClient), oauth.WithLogger(logging.Logger()))
	apiClient, err := api.NewClient(cfg.Server.URL, store,
		api.WithHTTPClient(httpClient),
		api.WithPublisher(bus),
		api.WithRetries(cfg.Server.Retries),
	)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		backend: backend,
		store:   store,
		bus:     bus,
		oauth:   oauthClient,
		api:     apiClient,
	}, nil
}

// callbackOrigin is the origin of the loopback page, and so of every
// redirect URI this installation registers.
func (rt *runtime) callbackOrigin() string {
	return "http://" + net.JoinHostPort(rt.cfg.OAuth.CallbackHost, strconv.Itoa(rt.cfg.OAuth.CallbackPort))
}

// newManager returns a session manager running in loc. Callers must Close it.
func (rt *runtime) newManager(loc auth.Location) (*auth.Manager, error) {
	m, err := auth.NewManager(auth.ManagerConfig{
		Store:                   rt.store,
		OAuth:                   rt.oauth,
		Prober:                  rt.api,
		Location:                loc,
		Bus:                     rt.bus,
		ServerURL:               rt.cfg.Server.URL,
		IssuerURL:               rt.cfg.IssuerURL(),
		AuthorizePath:           rt.cfg.OAuth.AuthorizePath,
		TokenPath:               rt.cfg.OAuth.TokenPath,
		RegistrationPath:        rt.cfg.OAuth.RegistrationPath,
		ClientName:              rt.cfg.OAuth.ClientName,
		Scope:                   rt.cfg.OAuth.Scope,
		DefaultProviders:        rt.cfg.OAuth.Providers,
		ProbeResource:           api.Resource(rt.cfg.Server.ProbeResource),
		UnexpectedStatusPolicy:  auth.UnexpectedStatusPolicy(rt.cfg.OAuth.UnexpectedStatusPolicy),
		DisableLegacyTokenParam: !rt.cfg.OAuth.AllowLegacyTokenParam,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}
	return m, nil
}

// detectSession resolves the current session without any callback.
func (rt *runtime) detectSession(ctx context.Context) (*auth.Manager, auth.Session, error) {
	m, err := rt.newManager(auth.NewStaticLocation(rt.callbackOrigin(), nil))
	if err != nil {
		return nil, auth.Session{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultStatusCheckTimeout)
	defer cancel()
	m.Start(ctx)
	return m, m.Session(), nil
}

// requireSession is the route guard for commands that call the API. It
// returns an authenticated session or an error explaining why there is none.
func requireSession(ctx context.Context, rt *runtime) (*auth.Manager, auth.Session, error) {
	m, s, err := rt.detectSession(ctx)
	if err != nil {
		return nil, auth.Session{}, err
	}
	if s.IsAuthenticated {
		return m, s, nil
	}

	m.Close()
	if s.AuthMode == auth.AuthModeUnknown {
		return nil, s, &ServerUnreachableError{Server: rt.cfg.Server.URL}
	}
	return nil, s, &AuthRequiredError{Server: rt.cfg.Server.URL}
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(rootCmd.OutOrStdout(), format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !quiet {
		fmt.Fprintln(rootCmd.OutOrStdout(), a...)
	}
}
