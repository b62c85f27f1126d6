package grant

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erauner12/oauthctl/internal/clientauth"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/provider"
)

// Revoke performs RFC 7009 token revocation. Per RFC 7009 §2.2 an HTTP 200
// means success, including when the token was already invalid or unknown
// to the server.
func (e *Engine) Revoke(ctx context.Context, p *provider.Record, token, tokenTypeHint string) error {
	if p.RevocationURL == "" {
		return oautherr.RevocationUnsupported{Provider: p.ID}
	}

	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RevocationURL, nil)
	if err != nil {
		return oautherr.BadURL{Field: "revocation_url", Value: p.RevocationURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := clientauth.Apply(req, form, p); err != nil {
		return err
	}
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.ContentLength = int64(len(form.Encode()))

	resp, err := e.HTTP.Do(ctx, req)
	if err != nil {
		return oautherr.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return parseProtocolError(resp.StatusCode, body)
	}
	return nil
}
