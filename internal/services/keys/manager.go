package keys

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

var errNoPublicKey = errors.New("key pair has no public key")

// Manager owns the local key pair and the cache of contacts' public keys.
//
// The pair is persisted as two base64 values written in one store call:
// the PKCS#8 private key and the SPKI public key. Contact keys live in
// memory only and are refetched after a restart.
type Manager struct {
	kv       domain.KVStore
	provider crypto.Provider
	log      *logrus.Entry

	mu       sync.RWMutex
	current  domain.KeyPair
	contacts map[domain.UserID]domain.PublicKey
}

// New returns a key manager persisting to kv.
func New(kv domain.KVStore, provider crypto.Provider, log *logrus.Entry) *Manager {
	return &Manager{
		kv:       kv,
		provider: provider,
		log:      logging.OrDiscard(log, "keys"),
		contacts: make(map[domain.UserID]domain.PublicKey),
	}
}

// Generate creates a fresh wrap/unwrap key pair. It does not persist it.
func (m *Manager) Generate() (domain.KeyPair, error) {
	kp, err := m.provider.GenerateKeyPair()
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: %v", domain.ErrKeyGeneration, err)
	}
	return kp, nil
}

// ExportPublicKey returns the SPKI encoding of the pair's public key.
func (m *Manager) ExportPublicKey(kp domain.KeyPair) ([]byte, error) {
	if kp.Public == nil {
		return nil, errNoPublicKey
	}
	return m.provider.ExportPublicKey(kp.Public)
}

// ImportPublicKey parses an SPKI-encoded public key.
func (m *Manager) ImportPublicKey(spki []byte) (domain.PublicKey, error) {
	pub, err := m.provider.ImportPublicKey(spki)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyImport, err)
	}
	return pub, nil
}

// Persist writes both halves of kp in one store write and makes it current.
func (m *Manager) Persist(kp domain.KeyPair) error {
	if kp.IsZero() {
		return fmt.Errorf("persist: incomplete key pair")
	}
	pub, err := m.provider.ExportPublicKey(kp.Public)
	if err != nil {
		return fmt.Errorf("persist: export public key: %w", err)
	}
	priv, err := m.provider.ExportPrivateKey(kp.Private)
	if err != nil {
		return fmt.Errorf("persist: export private key: %w", err)
	}
	defer crypto.Wipe(priv)

	if err := m.kv.SetMany(map[string]string{
		domain.KeyPrivateKey: crypto.B64(priv),
		domain.KeyPublicKey:  crypto.B64(pub),
	}); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	m.mu.Lock()
	m.current = kp
	m.mu.Unlock()
	m.log.WithField("fingerprint", crypto.Fingerprint(pub)).Debug("key pair persisted")
	return nil
}

// Load reads the persisted pair. It returns ok=false with no error when
// nothing is stored, and ErrKeyStorageCorrupted when only one half is
// present, either half fails to parse, or the halves do not belong together.
func (m *Manager) Load() (domain.KeyPair, bool, error) {
	privB64, hasPriv, err := m.kv.Get(domain.KeyPrivateKey)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	pubB64, hasPub, err := m.kv.Get(domain.KeyPublicKey)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	switch {
	case !hasPriv && !hasPub:
		return domain.KeyPair{}, false, nil
	case !hasPriv:
		return domain.KeyPair{}, false, corrupted("public key stored without private key", nil)
	case !hasPub:
		return domain.KeyPair{}, false, corrupted("private key stored without public key", nil)
	}

	privDER, err := crypto.UnB64(privB64)
	if err != nil {
		return domain.KeyPair{}, false, corrupted("private key encoding", err)
	}
	defer crypto.Wipe(privDER)
	pubDER, err := crypto.UnB64(pubB64)
	if err != nil {
		return domain.KeyPair{}, false, corrupted("public key encoding", err)
	}
	priv, err := m.provider.ImportPrivateKey(privDER)
	if err != nil {
		return domain.KeyPair{}, false, corrupted("private key", err)
	}
	pub, err := m.provider.ImportPublicKey(pubDER)
	if err != nil {
		return domain.KeyPair{}, false, corrupted("public key", err)
	}
	kp := domain.KeyPair{Public: pub, Private: priv}
	if err := m.checkPair(kp); err != nil {
		return domain.KeyPair{}, false, corrupted("key pair mismatch", err)
	}

	m.mu.Lock()
	m.current = kp
	m.mu.Unlock()
	m.log.WithField("fingerprint", crypto.Fingerprint(pubDER)).Debug("key pair loaded")
	return kp, true, nil
}

// checkPair wraps a random challenge with the public half and unwraps it with the
// private half.
func (m *Manager) checkPair(kp domain.KeyPair) error {
	challenge, err := crypto.RandomBytes(crypto.SymmetricKeySize)
	if err != nil {
		return err
	}
	wrapped, err := m.provider.WrapKey(challenge, kp.Public)
	if err != nil {
		return err
	}
	got, err := m.provider.UnwrapKey(wrapped, kp.Private)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, challenge) {
		return errors.New("challenge mismatch")
	}
	return nil
}

// Clear destroys the local pair, the enabled flag and every cached contact key.
func (m *Manager) Clear() error {
	if err := m.kv.Delete(domain.KeyPrivateKey, domain.KeyPublicKey, domain.KeyEncryptionOn); err != nil {
		return fmt.Errorf("clear keys: %w", err)
	}
	m.mu.Lock()
	m.current = domain.KeyPair{}
	m.contacts = make(map[domain.UserID]domain.PublicKey)
	m.mu.Unlock()
	m.log.Info("local key material cleared")
	return nil
}

// Current returns the loaded or last persisted key pair.
func (m *Manager) Current() (domain.KeyPair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, !m.current.IsZero()
}

// PublicKeyBase64 returns the SPKI public key of the current pair in base64.
func (m *Manager) PublicKeyBase64() (string, error) {
	kp, ok := m.Current()
	if !ok {
		return "", errNoPublicKey
	}
	spki, err := m.ExportPublicKey(kp)
	if err != nil {
		return "", err
	}
	return crypto.B64(spki), nil
}

// Fingerprint returns the short fingerprint of the current public key,
// or "" when there is no key pair.
func (m *Manager) Fingerprint() domain.Fingerprint {
	kp, ok := m.Current()
	if !ok {
		return ""
	}
	spki, err := m.ExportPublicKey(kp)
	if err != nil {
		return ""
	}
	return domain.Fingerprint(crypto.Fingerprint(spki))
}

// StoreContactKey imports a peer's base64 SPKI key and caches it,
// replacing any earlier key for that peer.
func (m *Manager) StoreContactKey(peer domain.UserID, spkiBase64 string) error {
	der, err := crypto.UnB64(spkiBase64)
	if err != nil {
		return fmt.Errorf("%w: peer %s: %v", domain.ErrKeyImport, peer, err)
	}
	pub, err := m.ImportPublicKey(der)
	if err != nil {
		return fmt.Errorf("peer %s: %w", peer, err)
	}
	m.mu.Lock()
	m.contacts[peer] = pub
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{
		"peer":        peer,
		"fingerprint": crypto.Fingerprint(der),
	}).Debug("contact key stored")
	return nil
}

// ContactKey returns the cached public key for peer.
func (m *Manager) ContactKey(peer domain.UserID) (domain.PublicKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pub, ok := m.contacts[peer]
	return pub, ok
}

// ContactCount returns the number of cached contact keys.
func (m *Manager) ContactCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contacts)
}

func corrupted(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrKeyStorageCorrupted, what, err)
	}
	return fmt.Errorf("%w: %s", domain.ErrKeyStorageCorrupted, what)
}

// Compile-time assertion that Manager implements domain.KeyManager.
var _ domain.KeyManager = (*Manager)(nil)
