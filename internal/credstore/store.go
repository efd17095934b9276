// Package credstore persists the remembered credential record on disk.
//
// The record mirrors the shape the web client kept in local storage: a
// single keyed entry holding the credential value plus an absolute expiry
// timestamp in epoch milliseconds. Unlike the browser, the value is sealed
// with chacha20poly1305 under a key derived from a per-store keyfile, so a
// leaked record alone does not expose the access token.
//
// Persistence is best-effort by contract: callers log and swallow store
// errors; a failed write never blocks in-memory session use.
package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"studycal/internal/model"
)

// Argon2id parameters (OWASP recommended).
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	saltLen       = 16
	keyfileLen    = 32
)

// record is the on-disk representation of the persisted credentials.
type record struct {
	Value  string `json:"value"` // base64 ciphertext of the Credentials JSON
	Nonce  string `json:"nonce"`
	Salt   string `json:"salt"`
	Expiry int64  `json:"expiry"` // epoch millis
}

// Store reads and writes a single credential record at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

// New creates a Store persisting at path. The keyfile lives next to it.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// NewWithClock is New with an injectable clock for expiry tests.
func NewWithClock(path string, now func() time.Time) *Store {
	return &Store{path: path, now: now}
}

// Load reads a previously persisted record. A missing record, an elapsed
// expiry, or an undecryptable record all report absent; elapsed and broken
// records are purged so the next Load is clean.
func (s *Store) Load() (model.Credentials, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Credentials{}, false, nil
		}
		return model.Credentials{}, false, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = s.Clear()
		return model.Credentials{}, false, err
	}

	if rec.Expiry <= s.now().UnixMilli() {
		// Record outlived its lifetime; treat as absent and purge.
		_ = s.Clear()
		return model.Credentials{}, false, nil
	}

	plain, err := s.open(rec)
	if err != nil {
		_ = s.Clear()
		return model.Credentials{}, false, err
	}

	var creds model.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		_ = s.Clear()
		return model.Credentials{}, false, err
	}

	return creds, true, nil
}

// Save persists credentials with an absolute expiry of now + ttl,
// overwriting any existing record.
func (s *Store) Save(creds model.Credentials, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("credstore: ttl must be positive")
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	rec, err := s.seal(plain)
	if err != nil {
		return err
	}
	rec.Expiry = s.now().Add(ttl).UnixMilli()

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(s.path, data)
}

// Clear removes the persisted record. Removing an already-absent record is
// not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// seal encrypts the plaintext under a fresh salt and nonce.
func (s *Store) seal(plain []byte) (record, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return record{}, err
	}

	aead, err := s.aead(salt)
	if err != nil {
		return record{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return record{}, err
	}

	sealed := aead.Seal(nil, nonce, plain, nil)

	return record{
		Value: base64.StdEncoding.EncodeToString(sealed),
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Salt:  base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// open decrypts a previously sealed record.
func (s *Store) open(rec record) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(rec.Value)
	if err != nil {
		return nil, err
	}

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	return aead.Open(nil, nonce, sealed, nil)
}

// aead derives the sealing key from the keyfile with Argon2id and returns
// the cipher instance.
func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	secret, err := s.loadOrCreateKeyfile()
	if err != nil {
		return nil, err
	}
	key := argon2.IDKey(secret, salt, argon2Time, argon2Memory, argon2Threads, chacha20poly1305.KeySize)
	return chacha20poly1305.New(key)
}

// keyfilePath is the per-store secret used as KDF input.
func (s *Store) keyfilePath() string {
	return s.path + ".key"
}

// loadOrCreateKeyfile reads the keyfile, creating it with random content on
// first use.
func (s *Store) loadOrCreateKeyfile() ([]byte, error) {
	data, err := os.ReadFile(s.keyfilePath())
	if err == nil && len(data) > 0 {
		return data, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	secret := make([]byte, keyfileLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.keyfilePath(), secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// writeFileAtomic writes data via a temp file + rename with 0600 perms.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studycal-cred-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
