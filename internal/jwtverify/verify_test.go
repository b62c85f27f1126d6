package jwtverify

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-enough-bytes"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerify_OpaqueToken(t *testing.T) {
	res := Verify(context.Background(), nil, "not-a-jwt", Options{})
	if !res.Opaque || !res.Valid {
		t.Fatalf("opaque token should be reported valid+opaque, got %+v", res)
	}
}

func TestVerify_ExpiredWithinAndOutsideTolerance(t *testing.T) {
	expiredAt := time.Now().Add(-61 * time.Second)
	token := signHS256(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiredAt.Unix(),
	})

	opts := Options{AllowedAlgorithms: []string{"HS256"}, Secret: []byte(testSecret), ClockTolerance: 60 * time.Second}
	res := Verify(context.Background(), nil, token, opts)
	if res.Valid {
		t.Fatalf("expected invalid token with 60s tolerance, got valid")
	}
	if len(res.Errors) == 0 {
		t.Fatalf("expected an error to be reported")
	}

	opts.ClockTolerance = 120 * time.Second
	res = Verify(context.Background(), nil, token, opts)
	if !res.Valid {
		t.Fatalf("expected valid token with 120s tolerance, got errors: %v", res.Errors)
	}
}

func TestVerify_RejectsAlgNone(t *testing.T) {
	// alg=none tokens can't be produced by jwt.SignedString with a real
	// method, so construct the compact form by hand.
	header := `{"alg":"none","typ":"JWT"}`
	payload := `{"sub":"user-1"}`
	token := b64(header) + "." + b64(payload) + "."

	res := Verify(context.Background(), nil, token, Options{})
	if res.Valid {
		t.Fatalf("alg=none must never validate")
	}
}

func TestVerify_IssuerAndAudience(t *testing.T) {
	token := signHS256(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"aud": "my-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	opts := Options{
		AllowedAlgorithms: []string{"HS256"},
		Secret:            []byte(testSecret),
		ExpectedIssuer:    "https://issuer.example",
		ExpectedAudience:  "my-api",
	}
	res := Verify(context.Background(), nil, token, opts)
	if !res.Valid {
		t.Fatalf("expected valid token, got errors: %v", res.Errors)
	}

	opts.ExpectedAudience = "other-api"
	res = Verify(context.Background(), nil, token, opts)
	if res.Valid {
		t.Fatalf("expected invalid token for mismatched audience")
	}
}

func TestVerify_IssuedInFutureWithinAndOutsideTolerance(t *testing.T) {
	issuedAt := time.Now().Add(61 * time.Second)
	token := signHS256(t, jwt.MapClaims{
		"sub": "user-1",
		"iat": issuedAt.Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	opts := Options{AllowedAlgorithms: []string{"HS256"}, Secret: []byte(testSecret), ClockTolerance: 60 * time.Second}
	res := Verify(context.Background(), nil, token, opts)
	if res.Valid {
		t.Fatalf("expected invalid token issued 61s in the future with 60s tolerance, got valid")
	}

	opts.ClockTolerance = 120 * time.Second
	res = Verify(context.Background(), nil, token, opts)
	if !res.Valid {
		t.Fatalf("expected valid token within 120s tolerance, got errors: %v", res.Errors)
	}
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
