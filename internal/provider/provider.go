// Package provider implements the normalized, read-only provider record
// that client authentication and the grant engine consume, generalizing
// the single-purpose Auth0Config shape into an arbitrary-provider record.
package provider

import (
	"fmt"
	"net/url"

	"github.com/erauner12/oauthctl/internal/oautherr"
)

// AuthMethod enumerates the client-authentication methods of RFC 6749 §2.3 /
// RFC 7523.
type AuthMethod string

const (
	AuthBasic           AuthMethod = "basic"
	AuthPost            AuthMethod = "post"
	AuthClientSecretJWT AuthMethod = "client_secret_jwt"
	AuthPrivateKeyJWT   AuthMethod = "private_key_jwt"
	AuthNone            AuthMethod = "none"
)

// GrantType enumerates the grants the engine understands.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
	GrantImplicit          GrantType = "implicit"
	GrantRefreshToken      GrantType = "refresh_token"
)

// Record is the normalized identity+endpoint set for one provider.
type Record struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	Issuer                 string `json:"issuer,omitempty"`
	AuthorizationURL       string `json:"authorization_url,omitempty"`
	TokenURL               string `json:"token_url"`
	DeviceAuthorizationURL string `json:"device_authorization_url,omitempty"`
	RevocationURL          string `json:"revocation_url,omitempty"`
	IntrospectionURL       string `json:"introspection_url,omitempty"`
	UserinfoURL            string `json:"userinfo_url,omitempty"`
	JWKSURL                string `json:"jwks_url,omitempty"`
	DiscoveryURL           string `json:"discovery_url,omitempty"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	PrivateKey   []byte `json:"-"` // PEM; never serialized

	AuthMethod AuthMethod `json:"auth_method"`

	DefaultScopes       []string    `json:"default_scopes,omitempty"`
	SupportedGrantTypes []GrantType `json:"supported_grant_types,omitempty"`

	PKCERequired bool     `json:"pkce_required"`
	PKCEMethods  []string `json:"pkce_methods,omitempty"`
}

// Validate enforces the provider record's invariants. Warnings are
// returned separately from the hard error so the CLI can surface them
// without failing config load.
func (r *Record) Validate() (warnings []string, err error) {
	if r.ID == "" {
		return nil, fmt.Errorf("provider: id must not be empty")
	}
	if r.TokenURL == "" {
		return nil, oautherr.ProviderMissingEndpoint{Provider: r.ID, Endpoint: "token_url"}
	}
	if _, e := parseAndWarnHTTPS(r.TokenURL, &warnings); e != nil {
		return warnings, oautherr.BadURL{Field: "token_url", Value: r.TokenURL, Err: e}
	}

	interactive := r.supportsInteractiveGrant()
	if interactive && r.AuthorizationURL == "" {
		return warnings, oautherr.ProviderMissingEndpoint{Provider: r.ID, Endpoint: "authorization_url"}
	}
	if r.AuthorizationURL != "" {
		if _, e := parseAndWarnHTTPS(r.AuthorizationURL, &warnings); e != nil {
			return warnings, oautherr.BadURL{Field: "authorization_url", Value: r.AuthorizationURL, Err: e}
		}
	}

	switch r.AuthMethod {
	case AuthBasic, AuthPost, AuthClientSecretJWT:
		if r.ClientSecret == "" {
			return warnings, oautherr.MissingCredential{Provider: r.ID, AuthMethod: string(r.AuthMethod)}
		}
	case AuthPrivateKeyJWT:
		if len(r.PrivateKey) == 0 {
			return warnings, oautherr.MissingCredential{Provider: r.ID, AuthMethod: string(r.AuthMethod)}
		}
	case AuthNone, "":
		// ok
	default:
		return warnings, fmt.Errorf("provider %q: unknown auth_method %q", r.ID, r.AuthMethod)
	}

	for _, m := range r.PKCEMethods {
		if m != "S256" {
			return warnings, oautherr.PkceMethodUnsupported{Method: m}
		}
	}

	for _, g := range r.SupportedGrantTypes {
		if !knownGrant(g) {
			return warnings, fmt.Errorf("provider %q: unknown grant type %q", r.ID, g)
		}
		if g == GrantImplicit {
			warnings = append(warnings, fmt.Sprintf("provider %q advertises the deprecated implicit grant", r.ID))
		}
		if g == GrantAuthorizationCode && !r.PKCERequired {
			warnings = append(warnings, fmt.Sprintf("provider %q supports authorization_code without requiring PKCE", r.ID))
		}
	}

	return warnings, nil
}

func (r *Record) supportsInteractiveGrant() bool {
	if len(r.SupportedGrantTypes) == 0 {
		return true // unknown support; assume the common case needs it
	}
	for _, g := range r.SupportedGrantTypes {
		if g == GrantAuthorizationCode || g == GrantImplicit {
			return true
		}
	}
	return false
}

func knownGrant(g GrantType) bool {
	switch g {
	case GrantAuthorizationCode, GrantClientCredentials, GrantPassword, GrantDeviceCode, GrantImplicit, GrantRefreshToken:
		return true
	default:
		return false
	}
}

func parseAndWarnHTTPS(raw string, warnings *[]string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		*warnings = append(*warnings, fmt.Sprintf("%q is not served over HTTPS", raw))
	}
	return u, nil
}

// PreferredAuthMethod orders candidate auth methods as
// private_key_jwt > client_secret_jwt > basic > post > none, skipping
// methods whose credentials are missing.
func (r *Record) PreferredAuthMethod() AuthMethod {
	order := []AuthMethod{AuthPrivateKeyJWT, AuthClientSecretJWT, AuthBasic, AuthPost, AuthNone}
	for _, m := range order {
		switch m {
		case AuthPrivateKeyJWT:
			if len(r.PrivateKey) > 0 {
				return m
			}
		case AuthClientSecretJWT, AuthBasic, AuthPost:
			if r.ClientSecret != "" {
				return m
			}
		case AuthNone:
			return m
		}
	}
	return AuthNone
}
