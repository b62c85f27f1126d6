package grant

import (
	"context"
	"net/url"

	"github.com/erauner12/oauthctl/internal/provider"
)

// Password drives the Resource Owner Password Credentials grant
// (RFC 6749 §4.3). Deprecated by RFC 9700; retained for legacy providers
// that still require it.
type Password struct {
	Username string
	Password string
	Scopes   []string
}

func (Password) GrantType() provider.GrantType { return provider.GrantPassword }

func (e *Engine) runPassword(ctx context.Context, p *provider.Record, g Password) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", string(provider.GrantPassword))
	form.Set("username", g.Username)
	form.Set("password", g.Password)
	if scopes := joinScopes(effectiveScopes(g.Scopes, p.DefaultScopes)); scopes != "" {
		form.Set("scope", scopes)
	}
	return e.postForm(ctx, p, form)
}
