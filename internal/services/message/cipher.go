package message

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

// Service encrypts and decrypts single messages with the hybrid scheme:
// a fresh AES-256-GCM key and nonce per message, with the key wrapped
// under the recipient's RSA-OAEP public key.
//
// Service holds no per-message state and is safe for concurrent use.
type Service struct {
	provider crypto.Provider
	log      *logrus.Entry
}

// Opened is the non-fatal result of decrypting one message.
type Opened struct {
	Plaintext string
	Err       error
}

// OK reports whether decryption succeeded.
func (o Opened) OK() bool { return o.Err == nil }

// New returns a cipher service using provider.
func New(provider crypto.Provider, log *logrus.Entry) *Service {
	return &Service{provider: provider, log: logging.OrDiscard(log, "cipher")}
}

// Encrypt seals plaintext for recipient. It never returns a partial envelope.
func (s *Service) Encrypt(plaintext string, recipient domain.PublicKey) (domain.Envelope, error) {
	if recipient == nil {
		return domain.Envelope{}, fmt.Errorf("%w: no public key for recipient", domain.ErrEncryption)
	}
	key, err := crypto.RandomBytes(crypto.SymmetricKeySize)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: symmetric key: %v", domain.ErrEncryption, err)
	}
	defer crypto.Wipe(key)

	nonce, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: nonce: %v", domain.ErrEncryption, err)
	}
	ct, err := s.provider.AEADEncrypt(key, nonce, []byte(plaintext))
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: payload: %v", domain.ErrEncryption, err)
	}
	wrapped, err := s.provider.WrapKey(key, recipient)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: wrap key: %v", domain.ErrEncryption, err)
	}
	return domain.Envelope{
		Ciphertext: crypto.B64(ct),
		WrappedKey: crypto.B64(wrapped),
		IV:         crypto.B64(nonce),
	}, nil
}

// Decrypt opens env with priv. Every failure is a *domain.DecryptionError.
func (s *Service) Decrypt(env domain.Envelope, priv domain.PrivateKey) (string, error) {
	if priv == nil {
		return "", fail("private key absent", nil)
	}
	if !env.Complete() {
		return "", fail("envelope incomplete", nil)
	}
	ct, err := crypto.UnB64(env.Ciphertext)
	if err != nil {
		return "", fail("malformed ciphertext encoding", err)
	}
	wrapped, err := crypto.UnB64(env.WrappedKey)
	if err != nil {
		return "", fail("malformed wrapped key encoding", err)
	}
	nonce, err := crypto.UnB64(env.IV)
	if err != nil {
		return "", fail("malformed iv encoding", err)
	}
	if len(nonce) != crypto.NonceSize {
		return "", fail(fmt.Sprintf("iv must be %d bytes, got %d", crypto.NonceSize, len(nonce)), nil)
	}

	key, err := s.provider.UnwrapKey(wrapped, priv)
	if err != nil {
		return "", fail("key unwrap failed", err)
	}
	defer crypto.Wipe(key)
	if len(key) != crypto.SymmetricKeySize {
		return "", fail(fmt.Sprintf("unwrapped key must be %d bytes, got %d", crypto.SymmetricKeySize, len(key)), nil)
	}

	pt, err := s.provider.AEADDecrypt(key, nonce, ct)
	if err != nil {
		return "", fail("authentication failed", err)
	}
	return string(pt), nil
}

// Open is Decrypt for callers that render failures instead of aborting.
func (s *Service) Open(env domain.Envelope, priv domain.PrivateKey) Opened {
	pt, err := s.Decrypt(env, priv)
	if err != nil {
		var de *domain.DecryptionError
		if errors.As(err, &de) {
			s.log.WithField("cause", de.Cause).Debug("message not decryptable")
		}
		return Opened{Err: err}
	}
	return Opened{Plaintext: pt}
}

func fail(cause string, err error) error {
	return &domain.DecryptionError{Cause: cause, Err: err}
}

// Compile-time assertion that Service implements domain.MessageCipher.
var _ domain.MessageCipher = (*Service)(nil)
