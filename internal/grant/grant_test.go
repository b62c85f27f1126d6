package grant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erauner12/oauthctl/internal/provider"
)

func testProvider(tokenURL string) *provider.Record {
	return &provider.Record{
		ID:         "test",
		TokenURL:   tokenURL,
		ClientID:   "client-a",
		AuthMethod: provider.AuthNone,
	}
}

func TestRunClientCredentials_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "tok-1", TokenType: "Bearer", ExpiresIn: 3600})
	}))
	defer server.Close()

	e := NewEngine()
	tr, err := e.Run(context.Background(), testProvider(server.URL), ClientCredentials{Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.AccessToken != "tok-1" {
		t.Fatalf("AccessToken = %q", tr.AccessToken)
	}
}

func TestRunClientCredentials_ProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client", "error_description": "bad creds"})
	}))
	defer server.Close()

	e := NewEngine()
	_, err := e.Run(context.Background(), testProvider(server.URL), ClientCredentials{})
	if err == nil {
		t.Fatalf("expected a protocol error")
	}
}

func TestRunRefresh_PreservesOldTokenWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "new-access"})
	}))
	defer server.Close()

	e := NewEngine()
	tr, err := e.Run(context.Background(), testProvider(server.URL), RefreshToken{RefreshToken: "old-refresh"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.RefreshToken != "old-refresh" {
		t.Fatalf("RefreshToken = %q, want preserved old-refresh", tr.RefreshToken)
	}
}

func TestRunRefresh_UsesRotatedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "new-access", RefreshToken: "rotated"})
	}))
	defer server.Close()

	e := NewEngine()
	tr, err := e.Run(context.Background(), testProvider(server.URL), RefreshToken{RefreshToken: "old-refresh"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.RefreshToken != "rotated" {
		t.Fatalf("RefreshToken = %q, want rotated", tr.RefreshToken)
	}
}

func TestDeviceAuthorization_PendingThenSuccess(t *testing.T) {
	pollCount := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(deviceCodeResponse{
			DeviceCode: "dc-1", UserCode: "USER-1", VerificationURI: "https://example/verify",
			ExpiresIn: 60, Interval: 1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		pollCount++
		if pollCount < 2 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "device-tok"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL + "/token")
	p.DeviceAuthorizationURL = server.URL + "/device"

	e := NewEngine()
	tr, err := e.Run(context.Background(), p, DeviceAuthorization{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.AccessToken != "device-tok" {
		t.Fatalf("AccessToken = %q", tr.AccessToken)
	}
	if pollCount < 2 {
		t.Fatalf("pollCount = %d, want at least 2", pollCount)
	}
}

func TestDeviceAuthorization_AccessDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(deviceCodeResponse{DeviceCode: "dc-1", ExpiresIn: 60, Interval: 1})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL + "/token")
	p.DeviceAuthorizationURL = server.URL + "/device"

	e := NewEngine()
	_, err := e.Run(context.Background(), p, DeviceAuthorization{})
	if err == nil {
		t.Fatalf("expected DeviceDeclined")
	}
}

func TestRevoke_200IsSuccessEvenForUnknownToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := testProvider(server.URL)
	p.RevocationURL = server.URL

	e := NewEngine()
	if err := e.Revoke(context.Background(), p, "whatever-token", "access_token"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
}

func TestIntrospect_Active(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(IntrospectionResult{Active: true, Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	}))
	defer server.Close()

	p := testProvider(server.URL)
	p.IntrospectionURL = server.URL

	e := NewEngine()
	ir, err := e.Introspect(context.Background(), p, "tok", "access_token")
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !ir.Active || ir.Subject != "user-1" {
		t.Fatalf("unexpected result: %+v", ir)
	}
}
