package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
)

func TestRSAProvider_WrapUnwrap(t *testing.T) {
	p := crypto.NewRSAProvider(2048)
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)

	key, err := crypto.RandomBytes(crypto.SymmetricKeySize)
	require.NoError(t, err)

	wrapped, err := p.WrapKey(key, kp.Public)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	got, err := p.UnwrapKey(wrapped, kp.Private)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestRSAProvider_ExportImportRoundTrip(t *testing.T) {
	p := crypto.NewRSAProvider(1024) // raised to 2048
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)

	spki, err := p.ExportPublicKey(kp.Public)
	require.NoError(t, err)
	again, err := p.ExportPublicKey(kp.Public)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(spki, again), "export must be deterministic")

	pub, err := p.ImportPublicKey(spki)
	require.NoError(t, err)

	pkcs8, err := p.ExportPrivateKey(kp.Private)
	require.NoError(t, err)
	priv, err := p.ImportPrivateKey(pkcs8)
	require.NoError(t, err)

	key := bytes.Repeat([]byte{7}, crypto.SymmetricKeySize)
	wrapped, err := p.WrapKey(key, pub)
	require.NoError(t, err)
	got, err := p.UnwrapKey(wrapped, priv)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestRSAProvider_ImportMalformed(t *testing.T) {
	p := crypto.NewRSAProvider(2048)
	_, err := p.ImportPublicKey([]byte("not a key"))
	assert.Error(t, err)
	_, err = p.ImportPrivateKey(nil)
	assert.Error(t, err)
}

func TestRSAProvider_AEAD(t *testing.T) {
	p := crypto.NewRSAProvider(2048)
	key := bytes.Repeat([]byte{1}, crypto.SymmetricKeySize)
	nonce := bytes.Repeat([]byte{2}, crypto.NonceSize)

	ct, err := p.AEADEncrypt(key, nonce, []byte("hello"))
	require.NoError(t, err)

	pt, err := p.AEADDecrypt(key, nonce, ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))

	ct[0] ^= 0xff
	_, err = p.AEADDecrypt(key, nonce, ct)
	assert.Error(t, err)

	_, err = p.AEADEncrypt(key[:16], nonce, []byte("x"))
	assert.Error(t, err)
	_, err = p.AEADEncrypt(key, nonce[:8], []byte("x"))
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	crypto.Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	crypto.Wipe(nil)
}

func TestFingerprint(t *testing.T) {
	fp := crypto.Fingerprint([]byte("spki"))
	assert.Len(t, fp, 20)
	assert.Equal(t, fp, crypto.Fingerprint([]byte("spki")))
}
