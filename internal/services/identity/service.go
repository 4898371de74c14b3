package identity

import (
	"context"
	"fmt"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when a store passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service owns the account-level encryption setting: whether this user has
// a key pair, whether the server knows it, and which contacts' keys are cached.
type Service struct {
	keys domain.KeyManager
	dir  domain.KeyDirectory
	kv   domain.KVStore
	user domain.CurrentUser
	log  *logrus.Entry

	mu          sync.RWMutex
	initialized bool
	enabled     bool
}

// New returns a settings service. kv holds the persisted enabled flag.
func New(
	keys domain.KeyManager,
	dir domain.KeyDirectory,
	kv domain.KVStore,
	user domain.CurrentUser,
	log *logrus.Entry,
) *Service {
	return &Service{
		keys: keys,
		dir:  dir,
		kv:   kv,
		user: user,
		log:  logging.OrDiscard(log, "identity"),
	}
}

// Initialize loads the persisted key pair and enabled flag. It is a no-op
// once it has succeeded. Corrupted key storage is returned, not repaired.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}

	_, ok, err := s.keys.Load()
	if err != nil {
		s.log.WithError(err).Warn("stored keys could not be loaded; regenerate with enable")
		return err
	}
	flag, _, err := s.kv.Get(domain.KeyEncryptionOn)
	if err != nil {
		return fmt.Errorf("read encryption flag: %w", err)
	}

	s.mu.Lock()
	s.enabled = ok && flag == "true"
	s.initialized = true
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"available": ok, "enabled": ok && flag == "true"}).Debug("initialized")
	return nil
}

// Enable generates a fresh key pair, persists it, and registers the public
// key with the server. If registration fails the previous key state is
// restored.
func (s *Service) Enable(ctx context.Context) error {
	prev, hadPrev := s.keys.Current()

	kp, err := s.keys.Generate()
	if err != nil {
		return err
	}
	if err := s.keys.Persist(kp); err != nil {
		return err
	}
	spki, err := s.keys.ExportPublicKey(kp)
	if err != nil {
		s.rollback(prev, hadPrev)
		return err
	}
	pub := crypto.B64(spki)
	if err := s.dir.PublishSettings(ctx, domain.EncryptionSettings{PublicKey: &pub, Enabled: true}); err != nil {
		s.rollback(prev, hadPrev)
		return fmt.Errorf("register public key: %w", err)
	}
	if err := s.kv.Set(domain.KeyEncryptionOn, "true"); err != nil {
		return fmt.Errorf("persist encryption flag: %w", err)
	}

	s.mu.Lock()
	s.enabled = true
	s.initialized = true
	s.mu.Unlock()
	s.log.WithField("fingerprint", crypto.Fingerprint(spki)).Info("end-to-end encryption enabled")
	return nil
}

func (s *Service) rollback(prev domain.KeyPair, hadPrev bool) {
	var err error
	if hadPrev {
		err = s.keys.Persist(prev)
	} else {
		err = s.keys.Clear()
	}
	if err != nil {
		s.log.WithError(err).Error("restore key state after failed enable")
	}
}

// Disable withdraws the public key from the server, then destroys the local
// key pair and contact keys. Nothing local changes if the server call fails.
func (s *Service) Disable(ctx context.Context) error {
	if err := s.dir.PublishSettings(ctx, domain.EncryptionSettings{}); err != nil {
		return fmt.Errorf("withdraw public key: %w", err)
	}
	if err := s.keys.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	s.log.Info("end-to-end encryption disabled")
	return nil
}

// IsAvailable reports whether a usable key pair is loaded.
func (s *Service) IsAvailable() bool {
	_, ok := s.keys.Current()
	return ok
}

// Enabled reports the account-level setting.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// CanEncrypt reports whether outbound messages can be encrypted at all.
func (s *Service) CanEncrypt() bool { return s.Enabled() && s.IsAvailable() }

// CanEncryptWith asks the server whether both sides have encryption enabled.
func (s *Service) CanEncryptWith(ctx context.Context, peer domain.UserID) (bool, error) {
	if !s.CanEncrypt() {
		return false, nil
	}
	self, err := s.user.UserID()
	if err != nil {
		return false, err
	}
	return s.dir.EncryptionStatus(ctx, self, peer)
}

// PeerKey returns peer's public key, fetching and caching it on first use.
// A peer with no registered key yields ErrEncryption.
func (s *Service) PeerKey(ctx context.Context, peer domain.UserID) (domain.PublicKey, error) {
	if pub, ok := s.keys.ContactKey(peer); ok {
		return pub, nil
	}
	b64, err := s.dir.FetchPublicKey(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch key for %s: %v", domain.ErrEncryption, peer, err)
	}
	if b64 == "" {
		return nil, fmt.Errorf("%w: user %s has no public key", domain.ErrEncryption, peer)
	}
	if err := s.keys.StoreContactKey(peer, b64); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	pub, _ := s.keys.ContactKey(peer)
	return pub, nil
}

// Fingerprint returns the short fingerprint of the local public key.
func (s *Service) Fingerprint() domain.Fingerprint {
	kp, ok := s.keys.Current()
	if !ok {
		return ""
	}
	spki, err := s.keys.ExportPublicKey(kp)
	if err != nil {
		return ""
	}
	return domain.Fingerprint(crypto.Fingerprint(spki))
}

// Stats summarises the local encryption state.
func (s *Service) Stats() domain.EncryptionStats {
	return domain.EncryptionStats{
		Available:   s.IsAvailable(),
		Enabled:     s.Enabled(),
		ContactKeys: s.keys.ContactCount(),
		Fingerprint: s.Fingerprint(),
	}
}

// Reset forgets in-memory state so the next Initialize reloads from storage.
func (s *Service) Reset() {
	s.mu.Lock()
	s.initialized = false
	s.enabled = false
	s.mu.Unlock()
}

// CheckPassphrase enforces a basic strength policy for store passphrases.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.EncryptionService.
var _ domain.EncryptionService = (*Service)(nil)
