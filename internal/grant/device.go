package grant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/clientauth"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/provider"
)

// DeviceAuthorization drives RFC 8628. Prompt, when set, is called once
// with the verification URI and user code so the caller can render
// instructions; if nil, nothing is printed.
type DeviceAuthorization struct {
	Scopes   []string
	Audience string
	Prompt   func(verificationURI, verificationURIComplete, userCode string)
}

func (DeviceAuthorization) GrantType() provider.GrantType { return provider.GrantDeviceCode }

// deviceCodeResponse is RFC 8628 §3.2's device authorization response.
type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

func (e *Engine) runDeviceAuthorization(ctx context.Context, p *provider.Record, g DeviceAuthorization) (*TokenResponse, error) {
	if p.DeviceAuthorizationURL == "" {
		return nil, oautherr.ProviderMissingEndpoint{Provider: p.ID, Endpoint: "device_authorization_url"}
	}

	dc, err := e.requestDeviceCode(ctx, p, g)
	if err != nil {
		return nil, fmt.Errorf("grant: device authorization request failed: %w", err)
	}

	if g.Prompt != nil {
		g.Prompt(dc.VerificationURI, dc.VerificationURIComplete, dc.UserCode)
	}
	log.Info().
		Str("verification_uri", dc.VerificationURI).
		Str("user_code", dc.UserCode).
		Msg("grant: waiting for device authorization")

	return e.pollDeviceToken(ctx, p, dc)
}

func (e *Engine) requestDeviceCode(ctx context.Context, p *provider.Record, g DeviceAuthorization) (*deviceCodeResponse, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	if scopes := joinScopes(effectiveScopes(g.Scopes, p.DefaultScopes)); scopes != "" {
		form.Set("scope", scopes)
	}
	if g.Audience != "" {
		form.Set("audience", g.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.DeviceAuthorizationURL, nil)
	if err != nil {
		return nil, oautherr.BadURL{Field: "device_authorization_url", Value: p.DeviceAuthorizationURL, Err: err}
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

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("grant: failed to decode device code response: %w", err)
	}
	return &dc, nil
}

// pollDeviceToken polls the token endpoint at dc.Interval (growing by 5s on
// slow_down) until the user authorizes, denies, or the device code expires.
func (e *Engine) pollDeviceToken(ctx context.Context, p *provider.Record, dc *deviceCodeResponse) (*TokenResponse, error) {
	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(dc.ExpiresIn) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, oautherr.DeviceExpired{}
			}

			form := url.Values{}
			form.Set("grant_type", string(provider.GrantDeviceCode))
			form.Set("device_code", dc.DeviceCode)

			tr, err := e.postForm(ctx, p, form)
			if err == nil {
				return tr, nil
			}

			var protoErr oautherr.Protocol
			if as(err, &protoErr) {
				switch protoErr.Code {
				case "authorization_pending":
					continue
				case "slow_down":
					interval += 5 * time.Second
					ticker.Reset(interval)
					continue
				case "access_denied":
					return nil, oautherr.DeviceDeclined{}
				case "expired_token":
					return nil, oautherr.DeviceExpired{}
				}
			}
			return nil, err
		}
	}
}

func as(err error, target *oautherr.Protocol) bool {
	p, ok := err.(oautherr.Protocol)
	if !ok {
		return false
	}
	*target = p
	return true
}
