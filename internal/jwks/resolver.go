// Package jwks implements fetching, caching, and key selection for JSON
// Web Key Sets (RFC 7517). It generalizes a single-IdP jwks cache to an
// arbitrary jwks_uri, and is built on lestrrat-go/jwx instead of hand-rolled
// n/e decoding so EC and x5c keys are supported too.
package jwks

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/oautherr"
)

// DefaultTTL is the cache lifetime for a fetched key set.
const DefaultTTL = time.Hour

type cacheEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

// Resolver fetches and caches JWKS documents per URI, deduplicating
// concurrent fetches of the same URI so a burst of verifications against a
// cold cache triggers one fetch instead of one per caller.
type Resolver struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	inflight   map[string]*sync.WaitGroup
	ttl        time.Duration
	httpClient *http.Client
}

// New creates a Resolver with the given cache TTL (DefaultTTL if zero).
func New(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		entries:    make(map[string]*cacheEntry),
		inflight:   make(map[string]*sync.WaitGroup),
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ClearCache drops all cached key sets, for use between test cases that
// need a cold cache.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*cacheEntry)
}

// Fetch returns the cached key set for uri, refetching if stale. Concurrent
// callers for the same URI share one in-flight HTTP request.
func (r *Resolver) Fetch(ctx context.Context, uri string) (jwk.Set, error) {
	r.mu.Lock()
	if entry, ok := r.entries[uri]; ok && time.Since(entry.fetchedAt) < r.ttl {
		r.mu.Unlock()
		return entry.set, nil
	}
	if wg, ok := r.inflight[uri]; ok {
		r.mu.Unlock()
		wg.Wait()
		r.mu.Lock()
		entry, ok := r.entries[uri]
		r.mu.Unlock()
		if !ok {
			return nil, oautherr.NetworkError{Err: fmt.Errorf("jwks: concurrent fetch of %s failed", uri)}
		}
		return entry.set, nil
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	r.inflight[uri] = wg
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, uri)
		r.mu.Unlock()
		wg.Done()
	}()

	set, err := jwk.Fetch(ctx, uri, jwk.WithHTTPClient(r.httpClient))
	if err != nil {
		return nil, oautherr.NetworkError{Err: fmt.Errorf("jwks: fetch %s: %w", uri, err)}
	}
	if set.Len() == 0 {
		return nil, oautherr.JwksMalformed{Reason: "key set is empty"}
	}

	r.mu.Lock()
	r.entries[uri] = &cacheEntry{set: set, fetchedAt: time.Now()}
	r.mu.Unlock()

	log.Debug().Str("jwks_uri", uri).Int("keys", set.Len()).Msg("refreshed JWKS cache")
	return set, nil
}

// SelectKey picks the JWK matching the token header: exact kid match if
// present, otherwise the first key compatible with alg/use.
func SelectKey(set jwk.Set, kid, alg string) (jwk.Key, error) {
	if kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, oautherr.KeyNotFound{Kid: kid, Alg: alg}
		}
		return key, nil
	}

	it := set.Keys(context.Background())
	for it.Next(context.Background()) {
		key, ok := it.Pair().Value.(jwk.Key)
		if !ok {
			continue
		}
		if keyAlg := key.Algorithm(); keyAlg.String() != "" && alg != "" && keyAlg.String() != alg {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != "sig" {
			continue
		}
		if !algCompatibleWithKeyType(alg, key.KeyType().String()) {
			continue
		}
		return key, nil
	}
	return nil, oautherr.KeyNotFound{Kid: "", Alg: alg}
}

func algCompatibleWithKeyType(alg, kty string) bool {
	switch {
	case alg == "":
		return true
	case len(alg) >= 2 && alg[:2] == "RS":
		return kty == "RSA"
	case len(alg) >= 2 && alg[:2] == "ES":
		return kty == "EC"
	default:
		return true
	}
}

// VerificationKey converts a JWK to a crypto.PublicKey usable by
// jwt.Keyfunc, preferring an x5c certificate chain over raw n/e or crv/x/y
// material when both are present.
func VerificationKey(key jwk.Key) (crypto.PublicKey, error) {
	if chain, ok := key.X509CertChain(); ok && chain.Len() > 0 {
		certDER, ok := chain.Get(0)
		if ok {
			cert, err := x509.ParseCertificate(certDER)
			if err == nil {
				return cert.PublicKey, nil
			}
			log.Warn().Err(err).Msg("jwks: failed to parse x5c certificate, falling back to raw key material")
		}
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, oautherr.JwksMalformed{Reason: fmt.Sprintf("failed to materialize key: %v", err)}
	}
	return raw, nil
}
