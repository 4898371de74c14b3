package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"cipherchat/internal/domain"
)

const sealFormat = "cipherchat-kv/1"

// scrypt cost parameters for new sealed stores.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the
	// sealed file has been modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted store")
	// ErrSealed is returned when a sealed file is opened without a passphrase.
	ErrSealed = errors.New("store is sealed; passphrase required")
)

// sealedFile is the on-disk form of a passphrase-protected store. The key
// is derived once per process; every write uses a fresh XChaCha20 nonce.
type sealedFile struct {
	Format string    `json:"format"`
	KDF    kdfParams `json:"kdf"`
	Nonce  []byte    `json:"nonce"`
	Data   []byte    `json:"data"`
}

type kdfParams struct {
	Salt []byte `json:"salt"`
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
}

// FileKV is a string key-value store persisted as one JSON file. When a
// passphrase is set the file is sealed with scrypt + XChaCha20-Poly1305.
// Every write replaces the file atomically.
type FileKV struct {
	path       string
	passphrase string

	mu     sync.Mutex
	data   map[string]string
	loaded bool
	kdf    kdfParams
	key    []byte
}

// NewFileKV returns a store at path. The file is read on first use.
func NewFileKV(path, passphrase string) *FileKV {
	return &FileKV{path: path, passphrase: passphrase}
}

// OpenFileKV returns a store at path and reads it immediately, so a wrong
// passphrase is reported up front.
func OpenFileKV(path, passphrase string) (*FileKV, error) {
	kv := NewFileKV(path, passphrase)
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.load(); err != nil {
		return nil, err
	}
	return kv, nil
}

// load reads the file into memory. Caller holds mu.
func (s *FileKV) load() error {
	if s.loaded {
		return nil
	}
	b, err := readFile(s.path)
	if err != nil {
		return err
	}
	m := make(map[string]string)
	if b != nil {
		raw := b
		sealed, isSealed := parseSealed(b)
		switch {
		case s.passphrase != "":
			if !isSealed {
				return fmt.Errorf("%w: %s is not sealed", ErrWrongPassphrase, s.path)
			}
			if raw, err = s.open(sealed); err != nil {
				return err
			}
		case isSealed:
			return ErrSealed
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("store %s: %w", s.path, err)
		}
	}
	s.data = m
	s.loaded = true
	return nil
}

func parseSealed(b []byte) (sealedFile, bool) {
	var f sealedFile
	if err := json.Unmarshal(b, &f); err != nil {
		return sealedFile{}, false
	}
	return f, f.Format == sealFormat && len(f.Data) > 0
}

// deriveKey sets the store key from the passphrase and p. Caller holds mu.
func (s *FileKV) deriveKey(p kdfParams) error {
	key, err := scrypt.Key([]byte(s.passphrase), p.Salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return fmt.Errorf("derive store key: %w", err)
	}
	s.kdf, s.key = p, key
	return nil
}

// open decrypts a sealed file, adopting its KDF parameters for later writes.
func (s *FileKV) open(f sealedFile) ([]byte, error) {
	if err := s.deriveKey(f.KDF); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(f.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrWrongPassphrase)
	}
	pt, err := aead.Open(nil, f.Nonce, f.Data, []byte(sealFormat))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// seal encrypts raw under the store key, deriving one with a fresh salt for
// a store that has never been written.
func (s *FileKV) seal(raw []byte) ([]byte, error) {
	if s.key == nil {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		if err := s.deriveKey(kdfParams{Salt: salt, N: scryptN, R: scryptR, P: scryptP}); err != nil {
			return nil, err
		}
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealedFile{
		Format: sealFormat,
		KDF:    s.kdf,
		Nonce:  nonce,
		Data:   aead.Seal(nil, nonce, raw, []byte(sealFormat)),
	})
}

// commit persists next and makes it current. Caller holds mu.
func (s *FileKV) commit(next map[string]string) error {
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	if s.passphrase != "" {
		if raw, err = s.seal(raw); err != nil {
			return err
		}
	}
	if err := writeFile(s.path, raw, 0o600); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *FileKV) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", false, err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *FileKV) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

func (s *FileKV) SetMany(pairs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	next := maps.Clone(s.data)
	maps.Copy(next, pairs)
	return s.commit(next)
}

func (s *FileKV) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	next := maps.Clone(s.data)
	changed := false
	for _, k := range keys {
		if _, ok := next[k]; ok {
			delete(next, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.commit(next)
}

func (s *FileKV) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(s.data)), nil
}

// Close drops the derived key. The store reopens lazily on next use.
func (s *FileKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.key)
	s.key = nil
	s.data = nil
	s.loaded = false
	return nil
}

var _ domain.KVStore = (*FileKV)(nil)
