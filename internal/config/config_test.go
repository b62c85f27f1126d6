package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/erauner12/oauthctl/internal/provider"
)

func TestLoad_FileAndDefaultProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	body := `{
		"default_provider": "acme",
		"providers": {
			"acme": {"token_url": "https://acme.example/token", "client_id": "c1"}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := cat.Provider("")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.ID != "acme" || p.TokenURL != "https://acme.example/token" {
		t.Fatalf("unexpected provider: %+v", p)
	}
}

func TestProvider_UnknownID(t *testing.T) {
	cat := &Catalog{Providers: map[string]*provider.Record{}}
	if _, err := cat.Provider("ghost"); err == nil {
		t.Fatalf("expected an error for an unknown provider id")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/providers.json"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestLoad_EnvOverridesClientSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	body := `{"providers": {"acme": {"token_url": "https://acme.example/token", "client_id": "c1"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("OAUTHCTL_ACME_CLIENT_SECRET", "s3cr3t")

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := cat.Provider("acme")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.ClientSecret != "s3cr3t" {
		t.Fatalf("ClientSecret = %q, want overridden value", p.ClientSecret)
	}
}

func TestLoad_FillsEndpointsFromDiscovery(t *testing.T) {
	discovery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_endpoint": "https://idp.example/token", "jwks_uri": "https://idp.example/jwks"}`))
	}))
	defer discovery.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	body := `{"providers": {"acme": {"client_id": "c1", "discovery_url": "` + discovery.URL + `"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := cat.Provider("acme")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.TokenURL != "https://idp.example/token" {
		t.Fatalf("TokenURL = %q, want the discovered endpoint", p.TokenURL)
	}
	if p.JWKSURL != "https://idp.example/jwks" {
		t.Fatalf("JWKSURL = %q, want the discovered endpoint", p.JWKSURL)
	}
}
