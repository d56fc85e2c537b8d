package loopback

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"mnemo/internal/auth"
	"mnemo/pkg/logging"
)

const (
	// DefaultHost is the loopback host used in the redirect URI.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default loopback port. A fixed port keeps the
	// redirect URI, and therefore the registered client, stable across runs.
	DefaultPort = 8765

	// CallbackTimeout is how long a login waits for the redirect.
	CallbackTimeout = 10 * time.Minute
)

// ErrNotStarted is returned when the server is used before Start.
var ErrNotStarted = errors.New("loopback server not started")

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successPage = template.Must(template.New("success").Parse(successHTML))
	errorPage   = template.Must(template.New("error").Parse(errorHTML))
)

// Config configures a Server.
type Config struct {
	// Host is the host name placed in the origin. It must resolve to a
	// loopback address.
	Host string
	// Port to listen on. Zero picks DefaultPort; a negative value picks a
	// free port.
	Port int
	// NoBrowser prints authorization URLs to Out instead of opening them.
	NoBrowser bool
	// Out receives printed URLs. Defaults to os.Stderr.
	Out io.Writer
	// Opener overrides the system browser opener.
	Opener func(target string) error
}

// Server is a one-shot loopback page for the authorization redirect.
type Server struct {
	host      string
	port      int
	noBrowser bool
	out       io.Writer
	opener    func(string) error

	server   *http.Server
	listener net.Listener
	origin   string

	mu    sync.Mutex
	query url.Values

	once     sync.Once
	resultCh chan url.Values
	errorCh  chan error
	stopOnce sync.Once
}

var _ auth.Location = (*Server)(nil)

// New returns an unstarted Server.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	switch {
	case cfg.Port == 0:
		cfg.Port = DefaultPort
	case cfg.Port < 0:
		cfg.Port = 0
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.Opener == nil {
		cfg.Opener = OpenBrowser
	}
	return &Server{
		host:      cfg.Host,
		port:      cfg.Port,
		noBrowser: cfg.NoBrowser,
		out:       cfg.Out,
		opener:    cfg.Opener,
		query:     url.Values{},
		resultCh:  make(chan url.Values, 1),
		errorCh:   make(chan error, 1),
	}
}

// Start binds the loopback listener and serves until ctx is cancelled or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.origin = "http://" + net.JoinHostPort(s.host, strconv.Itoa(s.port))

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRedirect)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Loopback", "Listening on %s", s.origin)
	return nil
}

// Origin implements auth.Location.
func (s *Server) Origin() string {
	return s.origin
}

// Port returns the bound port after Start.
func (s *Server) Port() int {
	return s.port
}

// Query implements auth.Location. It is empty until a redirect arrives.
func (s *Server) Query() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(url.Values, len(s.query))
	for k, vs := range s.query {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// StripQuery implements auth.Location.
func (s *Server) StripQuery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = url.Values{}
}

// Navigate implements auth.Location by opening target in the browser.
// When the browser cannot be opened the URL is printed instead.
func (s *Server) Navigate(_ context.Context, target string) error {
	if s.origin == "" {
		return ErrNotStarted
	}
	if s.noBrowser {
		s.printURL(target)
		return nil
	}
	if err := s.opener(target); err != nil {
		logging.Warn("Loopback", "Failed to open browser: %v", err)
		s.printURL(target)
	}
	return nil
}

func (s *Server) printURL(target string) {
	fmt.Fprintf(s.out, "Open this URL in your browser to sign in:\n\n  %s\n\n", target)
}

// Wait blocks until the first redirect arrives and returns its query.
func (s *Server) Wait(ctx context.Context) (url.Values, error) {
	if s.listener == nil {
		return nil, ErrNotStarted
	}
	select {
	case q := <-s.resultCh:
		return q, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	if !isRedirect(query) {
		http.Error(w, "Waiting for the authorization server", http.StatusNotFound)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.processRedirect(w, query)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) processRedirect(w http.ResponseWriter, query url.Values) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var err error
	if e := query.Get(auth.ParamError); e != "" {
		err = errorPage.Execute(w, map[string]string{
			"Error":       e,
			"Description": query.Get(auth.ParamErrorDescription),
		})
	} else {
		err = successPage.Execute(w, nil)
	}
	if err != nil {
		logging.Warn("Loopback", "Failed to render callback page: %v", err)
	}

	s.mu.Lock()
	s.query = query
	s.mu.Unlock()

	select {
	case s.resultCh <- query:
	default:
	}

	logging.Debug("Loopback", "Received authorization redirect")
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

func isRedirect(q url.Values) bool {
	return q.Has(auth.ParamCode) || q.Has(auth.ParamError) || q.Has(auth.ParamToken)
}
