// Package tokenstore implements encrypted at-rest persistence of tokens
// keyed by provider id. It carries forward a keyring-style contract
// (graceful-degradation logging, Store/Get/Delete verbs) but targets an
// AES-256-GCM file blob rather than an OS keychain, with a persisted
// per-install salt so the derived key can be rotated independently of the
// password or passphrase it was derived from.
package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/oautherr"
)

const (
	nonceSize        = 12
	keySize          = 32
	saltSize         = 16
	pbkdf2Iters      = 100_000
	derivedKeyEnv    = "OAUTHCTL_STORE_KEY"
	passwordSentinel = "pbkdf2:"

	tokenFileName = "tokens.enc"
	saltFileName  = "salt"
	keyFileName   = "store.key"
)

// Token mirrors a token endpoint's TokenResponse, persisted verbatim.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Stored wraps Token with store bookkeeping.
type Stored struct {
	Token
	ProviderID string     `json:"provider_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Store is a directory-scoped, AES-256-GCM-encrypted token map.
type Store struct {
	mu  sync.Mutex
	dir string
	key []byte
}

// Open resolves a store's encryption key (raw env key, password-derived env
// key, or generated key file, in that order) and prepares dir with
// owner-only permissions.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("tokenstore: failed to create store directory: %w", err)
	}

	key, err := resolveKey(dir)
	if err != nil {
		return nil, err
	}

	return &Store{dir: dir, key: key}, nil
}

func resolveKey(dir string) ([]byte, error) {
	if raw := os.Getenv(derivedKeyEnv); raw != "" {
		if strings.HasPrefix(raw, passwordSentinel) {
			password := strings.TrimPrefix(raw, passwordSentinel)
			salt, err := loadOrCreateSalt(dir)
			if err != nil {
				return nil, err
			}
			return pbkdf2.Key([]byte(password), salt, pbkdf2Iters, keySize, sha256.New), nil
		}
		return decodeRawKey(raw)
	}

	return loadOrCreateKeyFile(dir)
}

func decodeRawKey(raw string) ([]byte, error) {
	if b, err := hex.DecodeString(raw); err == nil && len(b) == keySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == keySize {
		return b, nil
	}
	return nil, oautherr.KeyMaterialInvalid{Reason: fmt.Sprintf("%s must decode to exactly %d raw bytes (hex or base64)", derivedKeyEnv, keySize)}
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFileName)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("tokenstore: failed to generate salt: %w", err)
	}
	if err := atomicWrite(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

func loadOrCreateKeyFile(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)
	if data, err := os.ReadFile(path); err == nil {
		if len(data) != keySize {
			return nil, oautherr.StoreCorrupt{Reason: "key file has unexpected length"}
		}
		return data, nil
	}

	log.Warn().Str("path", path).Msg("tokenstore: no encryption key configured, generating one on first use; set " + derivedKeyEnv + " in production")

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("tokenstore: failed to generate key: %w", err)
	}
	if err := atomicWrite(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

// Put stores (or replaces) the token for providerID.
func (s *Store) Put(providerID string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked()
	if err != nil {
		return err
	}

	now := time.Now()
	entry := Stored{Token: token, ProviderID: providerID, CreatedAt: now}
	if token.ExpiresIn != 0 {
		exp := now.Add(time.Duration(token.ExpiresIn) * time.Second)
		entry.ExpiresAt = &exp
	}
	m[providerID] = entry

	return s.saveLocked(m)
}

// Get returns the token for providerID, or (nil, nil) if absent or expired.
// An expired entry is deleted as a side effect.
func (s *Store) Get(providerID string) (*Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	entry, ok := m[providerID]
	if !ok {
		return nil, nil
	}
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		delete(m, providerID)
		if err := s.saveLocked(m); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &entry, nil
}

// Delete removes a single provider's entry.
func (s *Store) Delete(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked()
	if err != nil {
		return err
	}
	delete(m, providerID)
	return s.saveLocked(m)
}

// ClearAll removes every entry.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(map[string]Stored{})
}

// ListProviders returns the provider ids with a stored entry.
func (s *Store) ListProviders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) tokenFilePath() string {
	return filepath.Join(s.dir, tokenFileName)
}

// loadLocked reverses the encrypt-then-store operation. A missing or
// corrupt file silently starts empty.
func (s *Store) loadLocked() (map[string]Stored, error) {
	data, err := os.ReadFile(s.tokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Stored{}, nil
		}
		return map[string]Stored{}, nil
	}

	plaintext, err := s.decrypt(data)
	if err != nil {
		log.Warn().Err(err).Msg("tokenstore: failed to decrypt store, starting empty")
		return map[string]Stored{}, nil
	}

	var m map[string]Stored
	if err := json.Unmarshal(plaintext, &m); err != nil {
		log.Warn().Err(err).Msg("tokenstore: corrupt token data, starting empty")
		return map[string]Stored{}, nil
	}
	return m, nil
}

// saveLocked serializes, encrypts, and atomically (write-then-rename)
// persists the token map.
func (s *Store) saveLocked(m map[string]Stored) error {
	plaintext, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to marshal token map: %w", err)
	}

	ciphertext, err := s.encrypt(plaintext)
	if err != nil {
		return oautherr.EncryptedWriteFailed{Err: err}
	}

	if err := atomicWrite(s.tokenFilePath(), ciphertext, 0o600); err != nil {
		return oautherr.EncryptedWriteFailed{Err: err}
	}
	return nil
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func (s *Store) decrypt(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// atomicWrite writes data to a temp file in the same directory, then
// renames it into place, the usual write-then-rename idiom for persisted
// config artifacts.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
