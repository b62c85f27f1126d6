// Package jwtverify implements JWT decoding and verification with clock
// tolerances, generalizing a single-issuer ValidateToken (which only ever
// handled RS256-via-JWKS or HS256-via-secret) to an arbitrary algorithm and
// claim set.
package jwtverify

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erauner12/oauthctl/internal/jwks"
	"github.com/erauner12/oauthctl/internal/oautherr"
)

// defaultAllowedAlgorithms is the default allow-list when none is set.
var defaultAllowedAlgorithms = []string{"RS256", "RS384", "RS512"}

// Options configures one Verify call.
type Options struct {
	AllowedAlgorithms  []string // default {RS256,RS384,RS512}
	Secret             []byte   // required for HMAC algs
	JWKSURI            string   // required for asymmetric algs
	ExpectedIssuer     string
	ExpectedAudience   string
	ClockTolerance     time.Duration // default 60s
	IgnoreExpiration   bool
	IgnoreNotBefore    bool
}

// Result is the outcome of one Verify call.
type Result struct {
	Valid  bool
	Opaque bool
	Claims jwt.MapClaims
	Header map[string]any
	Errors []error
}

// Verify decodes and validates token. A resolver is only consulted when an
// asymmetric algorithm is in play; pass nil if the caller never verifies
// asymmetric tokens.
func Verify(ctx context.Context, resolver *jwks.Resolver, token string, opts Options) Result {
	if strings.Count(token, ".") != 2 {
		return Result{Opaque: true, Valid: true}
	}

	allowed := opts.AllowedAlgorithms
	if len(allowed) == 0 {
		allowed = defaultAllowedAlgorithms
	}
	tolerance := opts.ClockTolerance
	if tolerance == 0 {
		tolerance = 60 * time.Second
	}

	claims := jwt.MapClaims{}
	var headerOut map[string]any

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		headerOut = t.Header

		alg, _ := t.Header["alg"].(string)
		if alg == "none" || !containsStr(allowed, alg) {
			return nil, oautherr.BadAlgorithm{Alg: alg}
		}

		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(opts.Secret) == 0 {
				return nil, oautherr.KeyMaterialInvalid{Reason: "HMAC algorithm requires opts.Secret"}
			}
			return opts.Secret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			if opts.JWKSURI == "" || resolver == nil {
				return nil, oautherr.KeyNotFound{Kid: headerKid(t.Header), Alg: alg}
			}
			set, err := resolver.Fetch(ctx, opts.JWKSURI)
			if err != nil {
				return nil, err
			}
			key, err := jwks.SelectKey(set, headerKid(t.Header), alg)
			if err != nil {
				return nil, err
			}
			return jwks.VerificationKey(key)
		default:
			return nil, oautherr.UnsupportedAlgorithm{Alg: alg}
		}
	}, jwt.WithValidMethods(allowed), jwt.WithoutClaimsValidation())

	res := Result{Header: headerOut, Claims: claims}

	if err != nil {
		res.Errors = append(res.Errors, classifyParseError(err))
		return res
	}
	if parsed == nil || !parsed.Valid {
		res.Errors = append(res.Errors, oautherr.BadSignature{})
		return res
	}

	if errs := validateClaims(claims, opts, tolerance); len(errs) > 0 {
		res.Errors = errs
		return res
	}

	res.Valid = true
	return res
}

func headerKid(h map[string]any) string {
	if kid, ok := h["kid"].(string); ok {
		return kid
	}
	return ""
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func classifyParseError(err error) error {
	var kindedErr oautherr.Kinded
	if as(err, &kindedErr) {
		return kindedErr
	}
	return oautherr.BadSignature{}
}

// as is a tiny errors.As wrapper kept local to avoid importing errors for
// one call site with a named interface target.
func as(err error, target *oautherr.Kinded) bool {
	if err == nil {
		return false
	}
	if k, ok := err.(oautherr.Kinded); ok {
		*target = k
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return as(u.Unwrap(), target)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if as(e, target) {
				return true
			}
		}
	}
	return false
}

func validateClaims(claims jwt.MapClaims, opts Options, tolerance time.Duration) []error {
	var errs []error
	now := time.Now()

	if !opts.IgnoreExpiration {
		if exp, ok := claims["exp"]; ok {
			expTime, valid := numericDateToTime(exp)
			if valid && now.After(expTime.Add(tolerance)) {
				errs = append(errs, oautherr.TokenExpired{ExpiredAt: expTime.String()})
			}
		}
	}

	if !opts.IgnoreNotBefore {
		if nbf, ok := claims["nbf"]; ok {
			nbfTime, valid := numericDateToTime(nbf)
			if valid && now.Before(nbfTime.Add(-tolerance)) {
				errs = append(errs, oautherr.TokenNotYetValid{NotBefore: nbfTime.String()})
			}
		}
	}

	if iat, ok := claims["iat"]; ok {
		iatTime, valid := numericDateToTime(iat)
		if valid && now.Before(iatTime.Add(-tolerance)) {
			errs = append(errs, oautherr.TokenIssuedInFuture{IssuedAt: iatTime.String()})
		}
	}

	if opts.ExpectedIssuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != opts.ExpectedIssuer {
			errs = append(errs, oautherr.BadIssuer{Expected: opts.ExpectedIssuer, Actual: iss})
		}
	}

	if opts.ExpectedAudience != "" {
		if !audienceContains(claims["aud"], opts.ExpectedAudience) {
			errs = append(errs, oautherr.BadAudience{Expected: opts.ExpectedAudience, Actual: audienceList(claims["aud"])})
		}
	}

	return errs
}

func numericDateToTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case jwt.NumericDate:
		return n.Time, true
	default:
		return time.Time{}, false
	}
}

func audienceContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == expected {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == expected {
				return true
			}
		}
	}
	return false
}

func audienceList(aud any) []string {
	switch v := aud.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
