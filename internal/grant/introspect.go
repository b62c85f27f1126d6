package grant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erauner12/oauthctl/internal/clientauth"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/provider"
)

// IntrospectionResult is RFC 7662 §2.2's introspection response, used as a
// fallback when a token is opaque and cannot be verified locally via JWT.
type IntrospectionResult struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Audience  any    `json:"aud,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// Introspect performs RFC 7662 token introspection.
func (e *Engine) Introspect(ctx context.Context, p *provider.Record, token, tokenTypeHint string) (*IntrospectionResult, error) {
	if p.IntrospectionURL == "" {
		return nil, oautherr.ProviderMissingEndpoint{Provider: p.ID, Endpoint: "introspection_url"}
	}

	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.IntrospectionURL, nil)
	if err != nil {
		return nil, oautherr.BadURL{Field: "introspection_url", Value: p.IntrospectionURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

	var ir IntrospectionResult
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, err
	}
	return &ir, nil
}
