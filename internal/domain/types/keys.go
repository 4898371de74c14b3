package types

// PublicKey is an opaque public key handle produced by a crypto provider.
type PublicKey any

// PrivateKey is an opaque private key handle produced by a crypto provider.
type PrivateKey any

// KeyPair is the local identity's wrap/unwrap key pair.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// IsZero reports whether either half of the pair is missing.
func (k KeyPair) IsZero() bool { return k.Public == nil || k.Private == nil }

// EncryptionSettings is the body of the settings registration call.
// A nil PublicKey clears the key held by the server.
type EncryptionSettings struct {
	PublicKey *string `json:"publicKey"`
	Enabled   bool    `json:"e2eeEnabled"`
}

// EncryptionStats summarises the local encryption state.
type EncryptionStats struct {
	Available   bool        `json:"available"`
	Enabled     bool        `json:"enabled"`
	ContactKeys int         `json:"contactKeys"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
}
