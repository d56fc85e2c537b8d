// Package oauth provides the OAuth 2.1 protocol pieces used by the mnemo
// client: PKCE generation (RFC 7636), authorization server metadata
// discovery (RFC 8414), dynamic client registration (RFC 7591), and the
// authorization_code grant.
//
// The package holds no credentials. Persisting verifiers, state values,
// client registrations and tokens is the job of internal/credentials, and
// sequencing the flow is the job of internal/auth.
//
// # Usage
//
//	pkce, err := oauth.GeneratePKCE()
//	state, err := oauth.GenerateState()
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	reg, err := client.RegisterClient(ctx, registerURL, oauth.NewRegistrationRequest("mnemo", redirectURI))
//	authURL, err := client.BuildAuthorizationURL(authorizeURL, reg.ClientID, redirectURI, state, "user", pkce)
package oauth
