package grant

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/erauner12/oauthctl/internal/oauthstate"
	"github.com/erauner12/oauthctl/internal/provider"
)

// oidcTestProvider wires a token endpoint and a JWKS endpoint signing
// id_tokens with a throwaway RSA key. sign must be called before the
// token endpoint is hit; it fixes the id_token the token endpoint replies
// with.
func oidcTestProvider(t *testing.T) (p *provider.Record, sign func(claims jwt.MapClaims), closeServers func()) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub, err := jwk.FromRaw(key.PublicKey)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	pub.Set(jwk.KeyIDKey, "kid-1")
	pub.Set(jwk.AlgorithmKey, "RS256")
	set := jwk.NewSet()
	set.AddKey(pub)

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))

	var idToken string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "access-1", TokenType: "Bearer", IDToken: idToken})
	}))

	p = &provider.Record{
		ID:               "oidc-test",
		Issuer:           "https://issuer.example",
		AuthorizationURL: "https://authorize.example/auth",
		TokenURL:         tokenServer.URL,
		JWKSURL:          jwksServer.URL,
		ClientID:         "client-a",
		AuthMethod:       provider.AuthNone,
	}

	sign = func(claims jwt.MapClaims) {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = "kid-1"
		s, err := tok.SignedString(key)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		idToken = s
	}

	return p, sign, func() {
		jwksServer.Close()
		tokenServer.Close()
	}
}

// freeLoopbackAddr picks an ephemeral port and returns it as a host:port,
// so the test can configure both the redirect_uri and the listen address
// up front instead of discovering the bound port after the fact.
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRunAuthorizationCode_VerifiesIDTokenAndNonce(t *testing.T) {
	p, sign, closeServers := oidcTestProvider(t)
	defer closeServers()

	addr := freeLoopbackAddr(t)

	g := AuthorizationCode{
		RedirectURI: "http://" + addr + "/callback",
		ListenAddr:  addr,
		States:      oauthstate.New(0, 0),
		Timeout:     2 * time.Second,
	}
	g.OpenBrowser = func(authURL string) {
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("parse authURL: %v", err)
			return
		}
		state := u.Query().Get("state")
		nonce := u.Query().Get("nonce")
		if nonce == "" {
			t.Errorf("expected a nonce param in the authorization URL")
			return
		}

		sign(jwt.MapClaims{
			"iss":   p.Issuer,
			"aud":   p.ClientID,
			"nonce": nonce,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
		})

		go func() {
			time.Sleep(50 * time.Millisecond)
			resp, err := http.Get(fmt.Sprintf("http://%s/callback?code=auth-code-1&state=%s", addr, state))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	e := NewEngine()
	tr, err := e.Run(context.Background(), p, g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.AccessToken != "access-1" {
		t.Fatalf("AccessToken = %q", tr.AccessToken)
	}
}

func TestRunAuthorizationCode_RejectsNonceMismatch(t *testing.T) {
	p, sign, closeServers := oidcTestProvider(t)
	defer closeServers()

	addr := freeLoopbackAddr(t)

	g := AuthorizationCode{
		RedirectURI: "http://" + addr + "/callback",
		ListenAddr:  addr,
		States:      oauthstate.New(0, 0),
		Timeout:     2 * time.Second,
	}
	g.OpenBrowser = func(authURL string) {
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("parse authURL: %v", err)
			return
		}
		state := u.Query().Get("state")

		sign(jwt.MapClaims{
			"iss":   p.Issuer,
			"aud":   p.ClientID,
			"nonce": "a-nonce-the-engine-never-sent",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
		})

		go func() {
			time.Sleep(50 * time.Millisecond)
			resp, err := http.Get(fmt.Sprintf("http://%s/callback?code=auth-code-1&state=%s", addr, state))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	e := NewEngine()
	_, err := e.Run(context.Background(), p, g)
	if err == nil {
		t.Fatalf("expected a nonce mismatch error")
	}
}
