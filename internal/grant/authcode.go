package grant

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/erauner12/oauthctl/internal/callback"
	"github.com/erauner12/oauthctl/internal/jwtverify"
	"github.com/erauner12/oauthctl/internal/oauthcrypto"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/oauthstate"
	"github.com/erauner12/oauthctl/internal/provider"
)

// authCodeState is what's bound to the CSRF state value for the lifetime
// of one authorization request: the PKCE verifier and, when the provider
// is OIDC-capable, the nonce sent with the authorization request.
type authCodeState struct {
	PKCE  *oauthcrypto.PkceChallenge
	Nonce string
}

// AuthorizationCode drives RFC 6749 §4.1 with mandatory PKCE (RFC 7636,
// S256 only, per RFC 9700). OpenBrowser, when set, is called with the
// fully built authorization URL; if nil, the caller is expected to display
// it themselves.
type AuthorizationCode struct {
	RedirectURI string
	ListenAddr  string // defaults to RedirectURI's host:port
	Scopes      []string
	Timeout     time.Duration // default callback.DefaultTimeout
	OpenBrowser func(authorizationURL string)

	States *oauthstate.Store // required
}

func (AuthorizationCode) GrantType() provider.GrantType { return provider.GrantAuthorizationCode }

func (e *Engine) runAuthorizationCode(ctx context.Context, p *provider.Record, g AuthorizationCode) (*TokenResponse, error) {
	if p.AuthorizationURL == "" {
		return nil, oautherr.ProviderMissingEndpoint{Provider: p.ID, Endpoint: "authorization_url"}
	}
	if g.RedirectURI == "" {
		return nil, oautherr.BadURL{Field: "redirect_uri", Value: "", Err: fmt.Errorf("must not be empty")}
	}
	if g.States == nil {
		return nil, fmt.Errorf("grant: AuthorizationCode requires a state store")
	}

	pkce, err := oauthcrypto.NewPkce()
	if err != nil {
		return nil, err
	}

	var nonce string
	if p.JWKSURL != "" {
		nonce, err = oauthcrypto.RandomNonce()
		if err != nil {
			return nil, err
		}
	}

	entry, err := g.States.Create(&authCodeState{PKCE: pkce, Nonce: nonce}, "")
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

	ln, err := callback.New(g.RedirectURI, false)
	if err != nil {
		return nil, err
	}
	if err := ln.Listen(listenAddr); err != nil {
		return nil, err
	}

	authURL := buildAuthorizationURL(p, g, entry.State, pkce, nonce)
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

	verified, ok := g.States.Verify(res.State, "")
	if !ok {
		return nil, oautherr.CallbackMismatch{State: res.State}
	}
	verifiedState, ok := verified.Data.(*authCodeState)
	if !ok {
		return nil, fmt.Errorf("grant: state entry missing PKCE verifier")
	}

	if res.Error != "" {
		return nil, oautherr.Protocol{Code: res.Error, Description: res.ErrorDescription}
	}
	if res.Code == "" {
		return nil, fmt.Errorf("grant: callback delivered no authorization code")
	}

	form := url.Values{}
	form.Set("grant_type", string(provider.GrantAuthorizationCode))
	form.Set("code", res.Code)
	form.Set("redirect_uri", g.RedirectURI)
	form.Set("code_verifier", verifiedState.PKCE.Verifier)

	tr, err := e.postForm(ctx, p, form)
	if err != nil {
		return nil, err
	}

	if tr.IDToken != "" && p.JWKSURL != "" {
		result := jwtverify.Verify(ctx, e.JWKS, tr.IDToken, jwtverify.Options{
			JWKSURI:          p.JWKSURL,
			ExpectedIssuer:   p.Issuer,
			ExpectedAudience: p.ClientID,
		})
		if !result.Valid {
			return nil, fmt.Errorf("grant: id_token verification failed: %v", result.Errors)
		}
		if verifiedState.Nonce != "" {
			claimedNonce, _ := result.Claims["nonce"].(string)
			if claimedNonce != verifiedState.Nonce {
				return nil, fmt.Errorf("grant: id_token nonce %q does not match the request nonce", claimedNonce)
			}
		}
	}

	return tr, nil
}

func buildAuthorizationURL(p *provider.Record, g AuthorizationCode, state string, pkce *oauthcrypto.PkceChallenge, nonce string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", g.RedirectURI)
	q.Set("state", state)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", string(pkce.Method))
	if nonce != "" {
		q.Set("nonce", nonce)
	}
	if scopes := joinScopes(effectiveScopes(g.Scopes, p.DefaultScopes)); scopes != "" {
		q.Set("scope", scopes)
	}

	sep := "?"
	if strings.Contains(p.AuthorizationURL, "?") {
		sep = "&"
	}
	return p.AuthorizationURL + sep + q.Encode()
}
