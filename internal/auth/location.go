package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Location is the page the flow runs in.
type Location interface {
	// Origin is scheme://host[:port] without a trailing slash.
	Origin() string
	// Query returns the current query parameters.
	Query() url.Values
	// StripQuery removes the query so callback parameters are consumed once.
	StripQuery()
	// Navigate sends the user agent to target.
	Navigate(ctx context.Context, target string) error
}

// StaticLocation is a Location with a fixed origin and an in-memory query.
// Navigations are recorded and optionally forwarded to NavigateFunc.
type StaticLocation struct {
	mu        sync.Mutex
	origin    string
	query     url.Values
	navigated []string

	// NavigateFunc, when set, is called for every navigation.
	NavigateFunc func(ctx context.Context, target string) error
}

var _ Location = (*StaticLocation)(nil)

// NewStaticLocation returns a location at origin with query.
func NewStaticLocation(origin string, query url.Values) *StaticLocation {
	return &StaticLocation{
		origin: strings.TrimRight(origin, "/"),
		query:  cloneValues(query),
	}
}

// ParseCallbackURL builds a location from a full redirect URL, for example
// one pasted from a browser address bar.
func ParseCallbackURL(raw string) (*StaticLocation, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("invalid callback URL: scheme and host are required")
	}
	return NewStaticLocation(u.Scheme+"://"+u.Host, u.Query()), nil
}

// Origin implements Location.
func (l *StaticLocation) Origin() string {
	return l.origin
}

// Query implements Location.
func (l *StaticLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.query)
}

// SetQuery replaces the query.
func (l *StaticLocation) SetQuery(q url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = cloneValues(q)
}

// StripQuery implements Location.
func (l *StaticLocation) StripQuery() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = url.Values{}
}

// Navigate implements Location.
func (l *StaticLocation) Navigate(ctx context.Context, target string) error {
	l.mu.Lock()
	l.navigated = append(l.navigated, target)
	fn := l.NavigateFunc
	l.mu.Unlock()

	if fn != nil {
		return fn(ctx, target)
	}
	return nil
}

// Navigated returns every navigation target so far.
func (l *StaticLocation) Navigated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.navigated...)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
