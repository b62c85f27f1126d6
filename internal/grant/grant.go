// Package grant implements the token-acquisition grants: Authorization
// Code (with PKCE), Client Credentials, Resource Owner Password, Device
// Authorization, Implicit, Refresh Token, Revocation, and Introspection.
// Each grant is a value implementing Grant; Run is the single dispatch
// point, generalizing a one-delegate-per-flow design into one flow engine
// that shares a token endpoint, client-auth, and transport across all of
// them.
package grant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erauner12/oauthctl/internal/clientauth"
	"github.com/erauner12/oauthctl/internal/jwks"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/provider"
	"github.com/erauner12/oauthctl/internal/transport"
)

// TokenResponse is the normalized shape of a token endpoint's JSON body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Grant is implemented by each supported grant type.
type Grant interface {
	// GrantType identifies which provider.GrantType this value drives.
	GrantType() provider.GrantType
}

// Engine executes grants against a provider record over a shared
// transport.
type Engine struct {
	HTTP *transport.Client
	JWKS *jwks.Resolver // used to verify id_tokens returned alongside access tokens
}

// NewEngine builds an Engine with a default transport.Client and JWKS cache.
func NewEngine() *Engine {
	return &Engine{HTTP: transport.New(0), JWKS: jwks.New(0)}
}

// Run dispatches g against p and returns the resulting token.
func (e *Engine) Run(ctx context.Context, p *provider.Record, g Grant) (*TokenResponse, error) {
	switch gr := g.(type) {
	case ClientCredentials:
		return e.runClientCredentials(ctx, p, gr)
	case Password:
		return e.runPassword(ctx, p, gr)
	case AuthorizationCode:
		return e.runAuthorizationCode(ctx, p, gr)
	case DeviceAuthorization:
		return e.runDeviceAuthorization(ctx, p, gr)
	case Implicit:
		return e.runImplicit(ctx, p, gr)
	case RefreshToken:
		return e.runRefresh(ctx, p, gr)
	default:
		return nil, fmt.Errorf("grant: unsupported grant value %T", g)
	}
}

// postForm applies client authentication, POSTs form to p.TokenURL, and
// decodes either a TokenResponse or a protocol error.
func (e *Engine) postForm(ctx context.Context, p *provider.Record, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, nil)
	if err != nil {
		return nil, oautherr.BadURL{Field: "token_url", Value: p.TokenURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if err := clientauth.Apply(req, form, p); err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.ContentLength = int64(len(form.Encode()))

	resp, err := e.HTTP.Do(ctx, req)
	if err != nil {
		return nil, oautherr.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, oautherr.NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseProtocolError(resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("grant: failed to decode token response: %w", err)
	}
	return &tr, nil
}

func parseProtocolError(status int, body []byte) error {
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return fmt.Errorf("grant: token request failed with status %d: %s", status, string(body))
	}
	return oautherr.Protocol{Code: e.Error, Description: e.ErrorDescription, URI: e.ErrorURI}
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func effectiveScopes(requested, defaults []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return defaults
}
