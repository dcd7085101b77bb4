package webrisk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the OAuth scope Web Risk submissions require.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenProvider exchanges service-account key material for a bearer token.
type TokenProvider interface {
	Token(ctx context.Context, key []byte) (string, error)
}

// ServiceAccountTokens signs a JWT with the key and exchanges it at the key's
// token_uri. Every call refreshes; tokens are not cached across keys.
type ServiceAccountTokens struct {
	Scopes []string
	// HTTPClient is used for the token exchange when set.
	HTTPClient *http.Client
}

func (s *ServiceAccountTokens) Token(ctx context.Context, key []byte) (string, error) {
	var probe map[string]any
	if err := json.Unmarshal(key, &probe); err != nil {
		return "", &CredentialError{Msg: "Service-account key is not valid JSON"}
	}
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	cfg, err := google.JWTConfigFromJSON(key, scopes...)
	if err != nil {
		return "", &CredentialError{Msg: "Could not use service-account key", Err: err}
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", &CredentialError{Msg: "Could not use service-account key", Err: err}
	}
	return tok.AccessToken, nil
}

// KeyFile reads a service-account key from disk on every call, so rotated
// keys are picked up without a restart.
type KeyFile struct {
	Path     string
	Provider TokenProvider
}

func (k *KeyFile) AccessToken(ctx context.Context) (string, error) {
	b, err := os.ReadFile(k.Path)
	if err != nil {
		return "", &CredentialError{Msg: fmt.Sprintf("read key file %s", k.Path), Err: err}
	}
	return k.Provider.Token(ctx, b)
}
