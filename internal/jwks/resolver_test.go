package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

func rsaJWKSServer(t *testing.T, kid string) (*httptest.Server, *int) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub, err := jwk.FromRaw(key.PublicKey)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	pub.Set(jwk.KeyIDKey, kid)
	pub.Set(jwk.AlgorithmKey, "RS256")

	set := jwk.NewSet()
	set.AddKey(pub)

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	return server, &hits
}

func TestFetch_CachesWithinTTL(t *testing.T) {
	server, hits := rsaJWKSServer(t, "kid-1")
	defer server.Close()

	r := New(time.Hour)
	set1, err := r.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	set2, err := r.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if set1 != set2 {
		t.Fatalf("expected the cached set to be returned on the second call")
	}
	if *hits != 1 {
		t.Fatalf("hits = %d, want 1", *hits)
	}
}

func TestFetch_ClearCacheForcesRefetch(t *testing.T) {
	server, hits := rsaJWKSServer(t, "kid-1")
	defer server.Close()

	r := New(time.Hour)
	if _, err := r.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	r.ClearCache()
	if _, err := r.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if *hits != 2 {
		t.Fatalf("hits = %d, want 2", *hits)
	}
}

func TestSelectKey_ByKid(t *testing.T) {
	server, _ := rsaJWKSServer(t, "kid-1")
	defer server.Close()

	r := New(time.Hour)
	set, err := r.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	key, err := SelectKey(set, "kid-1", "RS256")
	if err != nil {
		t.Fatalf("SelectKey: %v", err)
	}
	if key.KeyID() != "kid-1" {
		t.Fatalf("KeyID = %q", key.KeyID())
	}
}

func TestSelectKey_UnknownKidFails(t *testing.T) {
	server, _ := rsaJWKSServer(t, "kid-1")
	defer server.Close()

	r := New(time.Hour)
	set, err := r.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if _, err := SelectKey(set, "unknown-kid", "RS256"); err == nil {
		t.Fatalf("expected KeyNotFound for an unknown kid")
	}
}

func TestFetch_EmptySetIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwk.NewSet())
	}))
	defer server.Close()

	r := New(time.Hour)
	if _, err := r.Fetch(context.Background(), server.URL); err == nil {
		t.Fatalf("expected an error for an empty key set")
	}
}
