package interfaces

import (
	"context"
	"time"

	domaintypes "cipherchat/internal/domain/types"
)

// KeyManager owns the local key pair and the cache of contacts' public keys.
type KeyManager interface {
	Generate() (domaintypes.KeyPair, error)
	ExportPublicKey(kp domaintypes.KeyPair) ([]byte, error)
	ImportPublicKey(spki []byte) (domaintypes.PublicKey, error)
	Persist(kp domaintypes.KeyPair) error
	Load() (domaintypes.KeyPair, bool, error)
	Clear() error
	Current() (domaintypes.KeyPair, bool)
	StoreContactKey(peer domaintypes.UserID, spkiBase64 string) error
	ContactKey(peer domaintypes.UserID) (domaintypes.PublicKey, bool)
	ContactCount() int
}

// MessageCipher performs hybrid encryption of single messages.
type MessageCipher interface {
	Encrypt(plaintext string, recipient domaintypes.PublicKey) (domaintypes.Envelope, error)
	Decrypt(env domaintypes.Envelope, priv domaintypes.PrivateKey) (string, error)
}

// PlaintextCache keeps the plaintext of self-authored encrypted messages.
type PlaintextCache interface {
	Store(id domaintypes.MessageID, peer domaintypes.UserID, plaintext string, createdAt time.Time) error
	Recall(id domaintypes.MessageID) (string, bool)
	PurgeAll() error
	PurgeForPeer(peer domaintypes.UserID) error
}

// EncryptionService manages the account-level encryption setting.
type EncryptionService interface {
	Initialize(ctx context.Context) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	IsAvailable() bool
	Enabled() bool
	CanEncrypt() bool
	CanEncryptWith(ctx context.Context, peer domaintypes.UserID) (bool, error)
	PeerKey(ctx context.Context, peer domaintypes.UserID) (domaintypes.PublicKey, error)
	Stats() domaintypes.EncryptionStats
}

// CurrentUser resolves the signed-in account.
type CurrentUser interface {
	UserID() (domaintypes.UserID, error)
	Token() (string, error)
}
