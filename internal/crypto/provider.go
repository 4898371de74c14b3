package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"cipherchat/internal/domain"
)

const (
	// SymmetricKeySize is the AES-256 key length in bytes.
	SymmetricKeySize = 32
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// MinRSABits is the smallest accepted wrapping key size.
	MinRSABits = 2048
)

var (
	errUnsupportedKey = errors.New("unsupported key type")
)

// Provider is the set of primitives the messaging layer needs. Key handles
// are opaque to callers; only the provider that created them can use them.
type Provider interface {
	GenerateKeyPair() (domain.KeyPair, error)
	ExportPublicKey(pub domain.PublicKey) ([]byte, error)
	ImportPublicKey(der []byte) (domain.PublicKey, error)
	ExportPrivateKey(priv domain.PrivateKey) ([]byte, error)
	ImportPrivateKey(der []byte) (domain.PrivateKey, error)
	WrapKey(key []byte, pub domain.PublicKey) ([]byte, error)
	UnwrapKey(wrapped []byte, priv domain.PrivateKey) ([]byte, error)
	AEADEncrypt(key, nonce, plaintext []byte) ([]byte, error)
	AEADDecrypt(key, nonce, ciphertext []byte) ([]byte, error)
}

// RSAProvider implements Provider with RSA-OAEP/SHA-256 key wrapping and
// AES-256-GCM payload encryption. Public keys travel as SPKI DER and
// private keys are stored as PKCS#8 DER.
type RSAProvider struct {
	Bits int
	Rand io.Reader
}

// NewRSAProvider returns a provider generating keys of the given size.
// Sizes below MinRSABits are raised to MinRSABits.
func NewRSAProvider(bits int) *RSAProvider {
	if bits < MinRSABits {
		bits = MinRSABits
	}
	return &RSAProvider{Bits: bits, Rand: rand.Reader}
}

func (p *RSAProvider) random() io.Reader {
	if p.Rand == nil {
		return rand.Reader
	}
	return p.Rand
}

func (p *RSAProvider) GenerateKeyPair() (domain.KeyPair, error) {
	bits := p.Bits
	if bits < MinRSABits {
		bits = MinRSABits
	}
	priv, err := rsa.GenerateKey(p.random(), bits)
	if err != nil {
		return domain.KeyPair{}, err
	}
	return domain.KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

func (p *RSAProvider) ExportPublicKey(pub domain.PublicKey) ([]byte, error) {
	k, ok := pub.(*rsa.PublicKey)
	if !ok || k == nil {
		return nil, errUnsupportedKey
	}
	return x509.MarshalPKIXPublicKey(k)
}

func (p *RSAProvider) ImportPublicKey(der []byte) (domain.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	k, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errUnsupportedKey, parsed)
	}
	if k.N.BitLen() < MinRSABits {
		return nil, fmt.Errorf("rsa key too small: %d bits", k.N.BitLen())
	}
	return k, nil
}

func (p *RSAProvider) ExportPrivateKey(priv domain.PrivateKey) ([]byte, error) {
	k, ok := priv.(*rsa.PrivateKey)
	if !ok || k == nil {
		return nil, errUnsupportedKey
	}
	return x509.MarshalPKCS8PrivateKey(k)
}

func (p *RSAProvider) ImportPrivateKey(der []byte) (domain.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errUnsupportedKey, parsed)
	}
	return k, nil
}

func (p *RSAProvider) WrapKey(key []byte, pub domain.PublicKey) ([]byte, error) {
	k, ok := pub.(*rsa.PublicKey)
	if !ok || k == nil {
		return nil, errUnsupportedKey
	}
	return rsa.EncryptOAEP(sha256.New(), p.random(), k, key, nil)
}

func (p *RSAProvider) UnwrapKey(wrapped []byte, priv domain.PrivateKey) ([]byte, error) {
	k, ok := priv.(*rsa.PrivateKey)
	if !ok || k == nil {
		return nil, errUnsupportedKey
	}
	return rsa.DecryptOAEP(sha256.New(), nil, k, wrapped, nil)
}

func (p *RSAProvider) AEADEncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func (p *RSAProvider) AEADDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

var _ Provider = (*RSAProvider)(nil)
