package oauthcrypto

import (
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erauner12/oauthctl/internal/oautherr"
)

// signingMethod resolves an alg name to the golang-jwt signing method, a
// `t.Method.(type)` style dispatch but for the signing direction and the
// full HS/RS/ES family.
func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	case "RS256":
		return jwt.SigningMethodRS256, nil
	case "RS384":
		return jwt.SigningMethodRS384, nil
	case "RS512":
		return jwt.SigningMethodRS512, nil
	case "ES256":
		return jwt.SigningMethodES256, nil
	case "ES384":
		return jwt.SigningMethodES384, nil
	case "ES512":
		return jwt.SigningMethodES512, nil
	default:
		return nil, oautherr.UnsupportedAlgorithm{Alg: alg}
	}
}

// JwsSign produces a compact JWS for the given claim set. key is either the
// raw HMAC secret (HS*) or PEM-encoded private key material (RS*/ES*); the
// PEM block type is used to pick the parser, keeping key material opaque
// until the moment it's used.
func JwsSign(claims jwt.MapClaims, alg string, key []byte) (string, error) {
	method, err := signingMethod(alg)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(method, claims)

	var signingKey any
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		signingKey = key
	case *jwt.SigningMethodRSA:
		pk, err := parseRSAPrivateKey(key)
		if err != nil {
			return "", oautherr.KeyMaterialInvalid{Reason: err.Error()}
		}
		signingKey = pk
	case *jwt.SigningMethodECDSA:
		pk, err := parseECPrivateKey(key)
		if err != nil {
			return "", oautherr.KeyMaterialInvalid{Reason: err.Error()}
		}
		signingKey = pk
	default:
		return "", oautherr.UnsupportedAlgorithm{Alg: alg}
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("oauthcrypto: failed to sign jws: %w", err)
	}
	return signed, nil
}

// JwsVerify checks a compact JWS's signature against the given key/secret.
// It does not validate standard claims; callers needing claim validation use
// the jwtverify package, which does its own parsing with golang-jwt rather
// than calling this function.
func JwsVerify(compact, alg string, keyOrSecret []byte) (bool, error) {
	method, err := signingMethod(alg)
	if err != nil {
		return false, err
	}

	_, err = jwt.Parse(compact, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != method.Alg() {
			return nil, oautherr.BadAlgorithm{Alg: t.Method.Alg()}
		}
		switch method.(type) {
		case *jwt.SigningMethodHMAC:
			return keyOrSecret, nil
		case *jwt.SigningMethodRSA:
			return parseRSAPublicKey(keyOrSecret)
		case *jwt.SigningMethodECDSA:
			return parseECPublicKey(keyOrSecret)
		default:
			return nil, oautherr.UnsupportedAlgorithm{Alg: alg}
		}
	}, jwt.WithValidMethods([]string{method.Alg()}))

	if err != nil {
		return false, nil
	}
	return true, nil
}

func parseRSAPrivateKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("not a valid PEM block")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	case "PRIVATE KEY":
		return jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q for RSA key", block.Type)
	}
}

func parseRSAPublicKey(pemBytes []byte) (any, error) {
	return jwt.ParseRSAPublicKeyFromPEM(pemBytes)
}

func parseECPrivateKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("not a valid PEM block")
	}
	return jwt.ParseECPrivateKeyFromPEM(pemBytes)
}

func parseECPublicKey(pemBytes []byte) (any, error) {
	return jwt.ParseECPublicKeyFromPEM(pemBytes)
}

// DetectKeyFamily inspects a PEM block's header to tell RSA and EC private
// keys apart, the same way the client-auth engine picks RS256 vs ES256 for
// private_key_jwt without being told the algorithm explicitly.
func DetectKeyFamily(pemBytes []byte) (string, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return "", fmt.Errorf("oauthcrypto: not a valid PEM block")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return "RSA", nil
	case "EC PRIVATE KEY":
		return "EC", nil
	case "PRIVATE KEY":
		// PKCS#8 container; try RSA first, then EC.
		if _, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes); err == nil {
			return "RSA", nil
		}
		if _, err := jwt.ParseECPrivateKeyFromPEM(pemBytes); err == nil {
			return "EC", nil
		}
		return "", fmt.Errorf("oauthcrypto: PKCS#8 key is neither RSA nor EC")
	default:
		return "", fmt.Errorf("oauthcrypto: unsupported PEM block type %q", block.Type)
	}
}
