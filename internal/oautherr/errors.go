// Package oautherr defines the tagged-union error taxonomy shared by every
// core subsystem: config, protocol, flow, token/JWT, transport, and store
// errors. Each kind is its own struct so callers can errors.As into the
// shape they care about instead of string-matching.
package oautherr

import "fmt"

// Kind classifies an error for CLI exit-code mapping and metrics.
type Kind string

const (
	KindConfig      Kind = "config"
	KindProtocol    Kind = "protocol"
	KindFlow        Kind = "flow"
	KindToken       Kind = "token"
	KindTransport   Kind = "transport"
	KindStore       Kind = "store"
	KindGuard       Kind = "guard"
)

// --- Config errors ---

// ProviderMissingEndpoint indicates a required endpoint URL is absent.
type ProviderMissingEndpoint struct {
	Provider string
	Endpoint string
}

func (e ProviderMissingEndpoint) Error() string {
	return fmt.Sprintf("provider %q is missing required endpoint %q", e.Provider, e.Endpoint)
}
func (e ProviderMissingEndpoint) Kind() Kind { return KindConfig }

// BadURL indicates a configured URL failed to parse.
type BadURL struct {
	Field string
	Value string
	Err   error
}

func (e BadURL) Error() string {
	return fmt.Sprintf("field %q has invalid URL %q: %v", e.Field, e.Value, e.Err)
}
func (e BadURL) Kind() Kind { return KindConfig }
func (e BadURL) Unwrap() error { return e.Err }

// MissingCredential indicates an auth method requires credentials that are absent.
type MissingCredential struct {
	Provider   string
	AuthMethod string
}

func (e MissingCredential) Error() string {
	return fmt.Sprintf("provider %q auth_method %q requires a credential that was not configured", e.Provider, e.AuthMethod)
}
func (e MissingCredential) Kind() Kind { return KindConfig }

// PkceMethodUnsupported indicates a provider advertised a PKCE method other than S256.
type PkceMethodUnsupported struct {
	Method string
}

func (e PkceMethodUnsupported) Error() string {
	return fmt.Sprintf("pkce method %q is not supported, only S256 is accepted", e.Method)
}
func (e PkceMethodUnsupported) Kind() Kind { return KindConfig }

// --- Protocol errors (RFC 6749 §5.2 error values from the token endpoint) ---

// Protocol wraps an OAuth `error`/`error_description` pair returned by a provider.
type Protocol struct {
	Code        string // invalid_request, invalid_grant, invalid_client, ...
	Description string
	URI         string
}

func (e Protocol) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("oauth error %q", e.Code)
}
func (e Protocol) Kind() Kind { return KindProtocol }

const (
	ProtoInvalidRequest          = "invalid_request"
	ProtoUnauthorizedClient      = "unauthorized_client"
	ProtoAccessDenied            = "access_denied"
	ProtoUnsupportedResponseType = "unsupported_response_type"
	ProtoInvalidScope            = "invalid_scope"
	ProtoInvalidGrant            = "invalid_grant"
	ProtoInvalidClient           = "invalid_client"
	ProtoUnsupportedGrantType    = "unsupported_grant_type"
	ProtoTemporarilyUnavailable  = "temporarily_unavailable"
	ProtoServerError             = "server_error"
)

// --- Flow errors ---

// CallbackTimeout indicates the loopback listener never received a callback.
type CallbackTimeout struct {
	Timeout string
}

func (e CallbackTimeout) Error() string {
	return fmt.Sprintf("timed out after %s waiting for the authorization callback", e.Timeout)
}
func (e CallbackTimeout) Kind() Kind { return KindFlow }

// CallbackMismatch indicates the returned `state` did not match a live entry.
type CallbackMismatch struct {
	State string
}

func (e CallbackMismatch) Error() string {
	return fmt.Sprintf("callback state %q did not match any pending authorization request", e.State)
}
func (e CallbackMismatch) Kind() Kind { return KindFlow }

// AlreadyUsed indicates a second request hit a loopback listener that already completed.
type AlreadyUsed struct{}

func (e AlreadyUsed) Error() string { return "callback listener already served its one request" }
func (e AlreadyUsed) Kind() Kind { return KindFlow }

// PortBindFailed indicates the loopback listener could not bind redirect_uri's port.
type PortBindFailed struct {
	Addr string
	Err  error
}

func (e PortBindFailed) Error() string {
	return fmt.Sprintf("failed to bind loopback listener on %s: %v", e.Addr, e.Err)
}
func (e PortBindFailed) Kind() Kind { return KindFlow }
func (e PortBindFailed) Unwrap() error { return e.Err }

// PkceMissing indicates a provider requires PKCE but no verifier was supplied.
type PkceMissing struct {
	Provider string
}

func (e PkceMissing) Error() string {
	return fmt.Sprintf("provider %q requires PKCE but no verifier was created", e.Provider)
}
func (e PkceMissing) Kind() Kind { return KindFlow }

// DeviceDeclined indicates the resource owner denied a device authorization request.
type DeviceDeclined struct{}

func (e DeviceDeclined) Error() string { return "device authorization was declined by the user" }
func (e DeviceDeclined) Kind() Kind { return KindFlow }

// DeviceExpired indicates a device code expired before the user authorized it.
type DeviceExpired struct{}

func (e DeviceExpired) Error() string { return "device code expired before authorization completed" }
func (e DeviceExpired) Kind() Kind { return KindFlow }

// RevocationUnsupported indicates the provider has no revocation endpoint configured.
type RevocationUnsupported struct {
	Provider string
}

func (e RevocationUnsupported) Error() string {
	return fmt.Sprintf("provider %q does not advertise a revocation endpoint", e.Provider)
}
func (e RevocationUnsupported) Kind() Kind { return KindFlow }

// --- Token / JWT errors ---

type TokenExpired struct{ ExpiredAt string }

func (e TokenExpired) Error() string { return fmt.Sprintf("token expired at %s", e.ExpiredAt) }
func (e TokenExpired) Kind() Kind { return KindToken }

type TokenNotYetValid struct{ NotBefore string }

func (e TokenNotYetValid) Error() string {
	return fmt.Sprintf("token is not valid before %s", e.NotBefore)
}
func (e TokenNotYetValid) Kind() Kind { return KindToken }

// TokenIssuedInFuture indicates a token's iat claim is further in the
// future than clock tolerance allows.
type TokenIssuedInFuture struct{ IssuedAt string }

func (e TokenIssuedInFuture) Error() string {
	return fmt.Sprintf("token was issued in the future at %s", e.IssuedAt)
}
func (e TokenIssuedInFuture) Kind() Kind { return KindToken }

type BadSignature struct{}

func (e BadSignature) Error() string { return "jwt signature verification failed" }
func (e BadSignature) Kind() Kind { return KindToken }

type BadIssuer struct {
	Expected, Actual string
}

func (e BadIssuer) Error() string {
	return fmt.Sprintf("invalid issuer: expected %q, got %q", e.Expected, e.Actual)
}
func (e BadIssuer) Kind() Kind { return KindToken }

type BadAudience struct {
	Expected string
	Actual   []string
}

func (e BadAudience) Error() string {
	return fmt.Sprintf("invalid audience: expected %q, got %v", e.Expected, e.Actual)
}
func (e BadAudience) Kind() Kind { return KindToken }

type BadAlgorithm struct{ Alg string }

func (e BadAlgorithm) Error() string { return fmt.Sprintf("algorithm %q is not permitted", e.Alg) }
func (e BadAlgorithm) Kind() Kind { return KindToken }

type UnsupportedAlgorithm struct{ Alg string }

func (e UnsupportedAlgorithm) Error() string { return fmt.Sprintf("unsupported algorithm %q", e.Alg) }
func (e UnsupportedAlgorithm) Kind() Kind { return KindToken }

type KeyNotFound struct {
	Kid string
	Alg string
}

func (e KeyNotFound) Error() string {
	return fmt.Sprintf("no signing key found for kid=%q alg=%q", e.Kid, e.Alg)
}
func (e KeyNotFound) Kind() Kind { return KindToken }

type JwksMalformed struct{ Reason string }

func (e JwksMalformed) Error() string { return fmt.Sprintf("malformed JWKS document: %s", e.Reason) }
func (e JwksMalformed) Kind() Kind { return KindToken }

// --- Transport errors ---

type NetworkError struct{ Err error }

func (e NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e NetworkError) Kind() Kind { return KindTransport }
func (e NetworkError) Unwrap() error { return e.Err }

type Timeout struct{ Op string }

func (e Timeout) Error() string { return fmt.Sprintf("%s timed out", e.Op) }
func (e Timeout) Kind() Kind { return KindTransport }

type ConnectionRefused struct{ Addr string }

func (e ConnectionRefused) Error() string { return fmt.Sprintf("connection refused: %s", e.Addr) }
func (e ConnectionRefused) Kind() Kind { return KindTransport }

type HostNotFound struct{ Host string }

func (e HostNotFound) Error() string { return fmt.Sprintf("host not found: %s", e.Host) }
func (e HostNotFound) Kind() Kind { return KindTransport }

// --- Store errors ---

type KeyMaterialInvalid struct{ Reason string }

func (e KeyMaterialInvalid) Error() string { return fmt.Sprintf("invalid key material: %s", e.Reason) }
func (e KeyMaterialInvalid) Kind() Kind { return KindStore }

type EncryptedWriteFailed struct{ Err error }

func (e EncryptedWriteFailed) Error() string { return fmt.Sprintf("failed to write encrypted store: %v", e.Err) }
func (e EncryptedWriteFailed) Kind() Kind { return KindStore }
func (e EncryptedWriteFailed) Unwrap() error { return e.Err }

type EncryptedReadFailed struct{ Err error }

func (e EncryptedReadFailed) Error() string { return fmt.Sprintf("failed to decrypt store: %v", e.Err) }
func (e EncryptedReadFailed) Kind() Kind { return KindStore }
func (e EncryptedReadFailed) Unwrap() error { return e.Err }

type StoreCorrupt struct{ Reason string }

func (e StoreCorrupt) Error() string { return fmt.Sprintf("token store is corrupt: %s", e.Reason) }
func (e StoreCorrupt) Kind() Kind { return KindStore }

// --- Guards ---

type DosGuardTripped struct{ Limit int }

func (e DosGuardTripped) Error() string {
	return fmt.Sprintf("state store is at capacity (%d active entries), rejecting new state", e.Limit)
}
func (e DosGuardTripped) Kind() Kind { return KindGuard }

// Kinded is implemented by every error in this package; callers use it to
// pick a CLI exit code without a long type switch.
type Kinded interface {
	error
	Kind() Kind
}
