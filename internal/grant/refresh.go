package grant

import (
	"context"
	"net/url"

	"github.com/erauner12/oauthctl/internal/provider"
)

// RefreshToken drives RFC 6749 §6.
type RefreshToken struct {
	RefreshToken string
	Scopes       []string
}

func (RefreshToken) GrantType() provider.GrantType { return provider.GrantRefreshToken }

func (e *Engine) runRefresh(ctx context.Context, p *provider.Record, g RefreshToken) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", string(provider.GrantRefreshToken))
	form.Set("refresh_token", g.RefreshToken)
	if scopes := joinScopes(g.Scopes); scopes != "" {
		form.Set("scope", scopes)
	}

	tr, err := e.postForm(ctx, p, form)
	if err != nil {
		return nil, err
	}

	// Many providers omit refresh_token on a response that doesn't rotate
	// it; the caller's existing token must keep working.
	if tr.RefreshToken == "" {
		tr.RefreshToken = g.RefreshToken
	}
	return tr, nil
}
