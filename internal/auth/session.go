package auth

import (
	"slices"
	"time"
)

// AuthMode is how the server expects clients to authenticate.
type AuthMode string

const (
	// AuthModeDisabled means the server accepts unauthenticated requests.
	AuthModeDisabled AuthMode = "disabled"
	// AuthModeJWT means the server wants a bearer token but offers no
	// OAuth discovery; tokens are supplied out of band.
	AuthModeJWT AuthMode = "jwt"
	// AuthModeOAuth means the server runs the authorization code flow.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeUnknown means detection has not succeeded.
	AuthModeUnknown AuthMode = "unknown"
)

func (m AuthMode) String() string {
	if m == "" {
		return string(AuthModeUnknown)
	}
	return string(m)
}

// User describes the signed-in principal. Only ID is guaranteed.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Session is the observable authentication state.
//
// IsAuthenticated implies AuthMode is disabled or Token is non-empty.
type Session struct {
	IsAuthenticated bool     `json:"is_authenticated"`
	IsLoading       bool     `json:"is_loading"`
	User            *User    `json:"user,omitempty"`
	Token           string   `json:"-"`
	AuthMode        AuthMode `json:"auth_mode"`
	OAuthProviders  []string `json:"oauth_providers"`
}

// initialSession is the state before detection has run.
func initialSession() Session {
	return Session{
		IsLoading:      true,
		AuthMode:       AuthModeUnknown,
		OAuthProviders: []string{},
	}
}

// HasToken reports whether the session carries a bearer token.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// clone returns a copy that shares no mutable state with s.
func (s Session) clone() Session {
	c := s
	c.OAuthProviders = slices.Clone(s.OAuthProviders)
	if c.OAuthProviders == nil {
		c.OAuthProviders = []string{}
	}
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return c
}

func (s Session) equal(o Session) bool {
	return s.IsAuthenticated == o.IsAuthenticated &&
		s.IsLoading == o.IsLoading &&
		s.Token == o.Token &&
		s.AuthMode == o.AuthMode &&
		slices.Equal(s.OAuthProviders, o.OAuthProviders) &&
		userEqual(s.User, o.User)
}

func userEqual(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Email == b.Email && a.Name == b.Name && a.Notes == b.Notes
}
