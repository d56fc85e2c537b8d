package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mnemo/pkg/logging"
)

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// userFromToken reads the principal from a JWT access token without
// verifying it. The server verifies tokens; the client only displays who
// it is signed in as. Opaque tokens yield nil.
func userFromToken(token string) *User {
	if token == "" {
		return nil
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		logging.Debug("Auth", "Access token is not a readable JWT: %v", err)
		return nil
	}
	if claims.Subject == "" {
		return nil
	}

	user := &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}
	if claims.IssuedAt != nil {
		issued := claims.IssuedAt.Time.UTC().Truncate(time.Second)
		user.CreatedAt = &issued
	}
	return user
}
