package grant

import (
	"context"
	"net/url"

	"github.com/erauner12/oauthctl/internal/provider"
)

// ClientCredentials drives RFC 6749 §4.4.
type ClientCredentials struct {
	Scopes   []string
	Audience string
}

func (ClientCredentials) GrantType() provider.GrantType { return provider.GrantClientCredentials }

func (e *Engine) runClientCredentials(ctx context.Context, p *provider.Record, g ClientCredentials) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", string(provider.GrantClientCredentials))
	if scopes := joinScopes(effectiveScopes(g.Scopes, p.DefaultScopes)); scopes != "" {
		form.Set("scope", scopes)
	}
	if g.Audience != "" {
		form.Set("audience", g.Audience)
	}
	return e.postForm(ctx, p, form)
}
