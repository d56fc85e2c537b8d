package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// VerifierLength is the number of characters in a PKCE code verifier.
	// RFC 7636 allows 43 to 128 characters.
	VerifierLength = 64

	// StateLength is the number of characters in the anti-CSRF state value.
	StateLength = 32

	// ChallengeMethodS256 is the only PKCE method this client sends.
	ChallengeMethodS256 = "S256"
)

// unreservedAlphabet is the RFC 3986 unreserved character set, which RFC 7636
// requires for code verifiers.
const unreservedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// GenerateRandomString returns length characters drawn from the unreserved
// alphabet using crypto/rand. Each random byte is reduced modulo the alphabet
// size; the resulting bias is negligible for verifiers and state values.
func GenerateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("random string length must be positive, got %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = unreservedAlphabet[int(b)%len(unreservedAlphabet)]
	}
	return string(buf), nil
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, err := GenerateRandomString(VerifierLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       ChallengeFromVerifier(verifier),
		CodeChallengeMethod: ChallengeMethodS256,
	}, nil
}

// ChallengeFromVerifier derives the S256 challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func ChallengeFromVerifier(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState generates the random state parameter that links an
// authorization response back to the request that started it.
func GenerateState() (string, error) {
	state, err := GenerateRandomString(StateLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return state, nil
}
