package grant

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/erauner12/oauthctl/internal/callback"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/oauthstate"
	"github.com/erauner12/oauthctl/internal/provider"
)

// Implicit drives the deprecated RFC 6749 §4.2 grant. RFC 9700 recommends
// against it; callers should prefer AuthorizationCode and only reach for
// this when a legacy provider offers no alternative. NewImplicit sets
// Refuse to true, so a value built that way is refused until the caller
// clears it; the zero value has Refuse false and runs the flow.
type Implicit struct {
	RedirectURI string
	ListenAddr  string
	Scopes      []string
	Timeout     time.Duration
	OpenBrowser func(authorizationURL string)
	Refuse      bool // true when built by NewImplicit; false in the zero value

	States *oauthstate.Store
}

// NewImplicit builds an Implicit grant with Refuse defaulted to true.
func NewImplicit() Implicit {
	return Implicit{Refuse: true}
}

func (Implicit) GrantType() provider.GrantType { return provider.GrantImplicit }

func (e *Engine) runImplicit(ctx context.Context, p *provider.Record, g Implicit) (*TokenResponse, error) {
	if g.Refuse {
		return nil, oautherr.Protocol{
			Code:        "unsupported_response_type",
			Description: "the implicit grant is deprecated and refused by default; set Refuse=false to opt in",
		}
	}
	if p.AuthorizationURL == "" {
		return nil, oautherr.ProviderMissingEndpoint{Provider: p.ID, Endpoint: "authorization_url"}
	}
	if g.States == nil {
		g.States = oauthstate.New(0, 0)
	}

	entry, err := g.States.Create(nil, "")
	if err != nil {
		return nil, err
	}

	listenAddr := g.ListenAddr
	if listenAddr == "" {
		u, err := url.Parse(g.RedirectURI)
		if err != nil {
			return nil, oautherr.BadURL{Field: "redirect_uri", Value: g.RedirectURI, Err: err}
		}
		listenAddr = u.Host
	}

	ln, err := callback.New(g.RedirectURI, true)
	if err != nil {
		return nil, err
	}
	if err := ln.Listen(listenAddr); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("response_type", "token")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", g.RedirectURI)
	q.Set("state", entry.State)
	if scopes := joinScopes(effectiveScopes(g.Scopes, p.DefaultScopes)); scopes != "" {
		q.Set("scope", scopes)
	}
	sep := "?"
	if strings.Contains(p.AuthorizationURL, "?") {
		sep = "&"
	}
	authURL := p.AuthorizationURL + sep + q.Encode()

	if g.OpenBrowser != nil {
		g.OpenBrowser(authURL)
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = callback.DefaultTimeout
	}
	res, err := ln.Wait(ctx, timeout)
	if err != nil {
		return nil, err
	}

	fragValues, err := url.ParseQuery(res.Fragment)
	if err != nil {
		return nil, oautherr.CallbackMismatch{State: res.Fragment}
	}

	if _, ok := g.States.Verify(fragValues.Get("state"), ""); !ok {
		return nil, oautherr.CallbackMismatch{State: fragValues.Get("state")}
	}

	if errCode := fragValues.Get("error"); errCode != "" {
		return nil, oautherr.Protocol{Code: errCode, Description: fragValues.Get("error_description")}
	}

	return &TokenResponse{
		AccessToken: fragValues.Get("access_token"),
		TokenType:   fragValues.Get("token_type"),
		Scope:       fragValues.Get("scope"),
	}, nil
}
