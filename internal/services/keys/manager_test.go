package keys_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/services/keys"
	"cipherchat/internal/store"
)

type failingProvider struct{ *crypto.RSAProvider }

func (failingProvider) GenerateKeyPair() (domain.KeyPair, error) {
	return domain.KeyPair{}, errors.New("entropy unavailable")
}

func newManager(t *testing.T) (*keys.Manager, *store.MemoryKV) {
	t.Helper()
	kv := store.NewMemoryKV()
	return keys.New(kv, crypto.NewRSAProvider(2048), nil), kv
}

func TestPersistLoad_RoundTrip(t *testing.T) {
	m, kv := newManager(t)

	kp, err := m.Generate()
	require.NoError(t, err)
	require.NoError(t, m.Persist(kp))

	_, ok, _ := kv.Get(domain.KeyPrivateKey)
	assert.True(t, ok)
	_, ok, _ = kv.Get(domain.KeyPublicKey)
	assert.True(t, ok)

	// A fresh manager over the same store loads the same pair.
	m2 := keys.New(kv, crypto.NewRSAProvider(2048), nil)
	loaded, ok, err := m2.Load()
	require.NoError(t, err)
	require.True(t, ok)

	want, err := m.ExportPublicKey(kp)
	require.NoError(t, err)
	got, err := m2.ExportPublicKey(loaded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.Fingerprint(), m2.Fingerprint())
}

func TestLoad_Absent(t *testing.T) {
	m, _ := newManager(t)
	_, ok, err := m.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok = m.Current()
	assert.False(t, ok)
}

func TestLoad_Partial(t *testing.T) {
	m, kv := newManager(t)
	kp, err := m.Generate()
	require.NoError(t, err)
	require.NoError(t, m.Persist(kp))
	require.NoError(t, kv.Delete(domain.KeyPublicKey))

	_, _, err = keys.New(kv, crypto.NewRSAProvider(2048), nil).Load()
	assert.ErrorIs(t, err, domain.ErrKeyStorageCorrupted)
}

func TestLoad_Unparseable(t *testing.T) {
	m, kv := newManager(t)
	require.NoError(t, kv.SetMany(map[string]string{
		domain.KeyPrivateKey: "!!!",
		domain.KeyPublicKey:  crypto.B64([]byte("garbage")),
	}))
	_, _, err := m.Load()
	assert.ErrorIs(t, err, domain.ErrKeyStorageCorrupted)
}

func TestLoad_MismatchedPair(t *testing.T) {
	m, kv := newManager(t)
	a, err := m.Generate()
	require.NoError(t, err)
	b, err := m.Generate()
	require.NoError(t, err)
	require.NoError(t, m.Persist(a))

	otherPub, err := m.ExportPublicKey(b)
	require.NoError(t, err)
	require.NoError(t, kv.Set(domain.KeyPublicKey, crypto.B64(otherPub)))

	_, _, err = keys.New(kv, crypto.NewRSAProvider(2048), nil).Load()
	assert.ErrorIs(t, err, domain.ErrKeyStorageCorrupted)
}

func TestGenerate_Failure(t *testing.T) {
	m := keys.New(store.NewMemoryKV(), failingProvider{crypto.NewRSAProvider(2048)}, nil)
	_, err := m.Generate()
	assert.ErrorIs(t, err, domain.ErrKeyGeneration)
}

func TestContactKeys(t *testing.T) {
	m, _ := newManager(t)
	kp, err := m.Generate()
	require.NoError(t, err)
	spki, err := m.ExportPublicKey(kp)
	require.NoError(t, err)

	require.NoError(t, m.StoreContactKey(42, crypto.B64(spki)))
	first, ok := m.ContactKey(42)
	require.True(t, ok)

	other, err := m.Generate()
	require.NoError(t, err)
	otherSPKI, err := m.ExportPublicKey(other)
	require.NoError(t, err)
	require.NoError(t, m.StoreContactKey(42, crypto.B64(otherSPKI)))

	second, ok := m.ContactKey(42)
	require.True(t, ok)
	assert.NotEqual(t, first, second, "later import replaces earlier key")
	assert.Equal(t, 1, m.ContactCount())

	err = m.StoreContactKey(43, "not base64 !!")
	assert.ErrorIs(t, err, domain.ErrKeyImport)
	err = m.StoreContactKey(43, crypto.B64([]byte("not spki")))
	assert.ErrorIs(t, err, domain.ErrKeyImport)
}

func TestClear(t *testing.T) {
	m, kv := newManager(t)
	kp, err := m.Generate()
	require.NoError(t, err)
	require.NoError(t, m.Persist(kp))
	require.NoError(t, kv.Set(domain.KeyEncryptionOn, "true"))
	spki, _ := m.ExportPublicKey(kp)
	require.NoError(t, m.StoreContactKey(5, crypto.B64(spki)))

	require.NoError(t, m.Clear())

	keysLeft, err := kv.Keys()
	require.NoError(t, err)
	assert.Empty(t, keysLeft)
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Zero(t, m.ContactCount())
	assert.Empty(t, m.Fingerprint())
}
