// Package clientauth implements applying one of the RFC 6749 §2.3 /
// RFC 7523 client-authentication methods to an outgoing token request,
// including the JWT-assertion path (client_secret_jwt / private_key_jwt)
// that a bare client_id-in-the-clear implementation never builds.
package clientauth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/oauthcrypto"
	"github.com/erauner12/oauthctl/internal/oautherr"
	"github.com/erauner12/oauthctl/internal/provider"
)

// assertionLifetime is the exp - iat window for a client assertion.
const assertionLifetime = 60 * time.Second

// Apply mutates form with the credentials for the record's configured
// client-authentication method (or the best available one when AuthMethod
// is unset); methods that authenticate via a header (basic) set the
// Authorization header on req directly. The returned error is non-nil only
// when the credentials cannot be applied.
func Apply(req *http.Request, form url.Values, p *provider.Record) error {
	method := p.AuthMethod
	if method == "" {
		method = p.PreferredAuthMethod()
	}

	switch method {
	case provider.AuthBasic:
		if p.ClientSecret == "" {
			log.Warn().Str("provider", p.ID).Msg("clientauth: basic auth requested with no client_secret, degrading to none")
			form.Set("client_id", p.ClientID)
			return nil
		}
		req.Header.Set("Authorization", basicHeader(p.ClientID, p.ClientSecret))
		return nil

	case provider.AuthPost:
		log.Warn().Str("provider", p.ID).Msg("clientauth: using client_secret_post, a lower-security method than basic or JWT assertions")
		form.Set("client_id", p.ClientID)
		form.Set("client_secret", p.ClientSecret)
		return nil

	case provider.AuthClientSecretJWT:
		assertion, err := buildAssertion(p, "HS256", []byte(p.ClientSecret))
		if err != nil {
			return err
		}
		setAssertionParams(form, p.ClientID, assertion)
		return nil

	case provider.AuthPrivateKeyJWT:
		family, err := oauthcrypto.DetectKeyFamily(p.PrivateKey)
		if err != nil {
			return oautherr.KeyMaterialInvalid{Reason: err.Error()}
		}
		alg := "RS256"
		if family == "EC" {
			alg = "ES256"
		}
		assertion, err := buildAssertion(p, alg, p.PrivateKey)
		if err != nil {
			return err
		}
		setAssertionParams(form, p.ClientID, assertion)
		return nil

	case provider.AuthNone:
		form.Set("client_id", p.ClientID)
		return nil

	default:
		return fmt.Errorf("clientauth: unknown auth method %q", method)
	}
}

func basicHeader(clientID, clientSecret string) string {
	raw := clientID + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// buildAssertion signs a new JWT assertion per RFC 7523: iss=sub=client_id,
// aud=token_url, a fresh jti, and a fixed 60s lifetime. Each call mints a
// new jti, making assertions one-shot.
func buildAssertion(p *provider.Record, alg string, key []byte) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": p.ClientID,
		"sub": p.ClientID,
		"aud": p.TokenURL,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}
	return oauthcrypto.JwsSign(claims, alg, key)
}

func setAssertionParams(form url.Values, clientID, assertion string) {
	form.Set("client_id", clientID)
	form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
	form.Set("client_assertion", assertion)
}
