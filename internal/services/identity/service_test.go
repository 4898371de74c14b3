package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/services/identity"
	"cipherchat/internal/services/keys"
	"cipherchat/internal/store"
)

type fakeDirectory struct {
	mu        sync.Mutex
	published []domain.EncryptionSettings
	keys      map[domain.UserID]string
	both      bool
	fail      error
	fetches   int
}

func (d *fakeDirectory) PublishSettings(_ context.Context, s domain.EncryptionSettings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.published = append(d.published, s)
	return nil
}

func (d *fakeDirectory) FetchPublicKey(_ context.Context, u domain.UserID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches++
	return d.keys[u], nil
}

func (d *fakeDirectory) EncryptionStatus(context.Context, domain.UserID, domain.UserID) (bool, error) {
	return d.both, nil
}

type me struct{}

func (me) UserID() (domain.UserID, error) { return 1, nil }
func (me) Token() (string, error)          { return "t", nil }

func newService(t *testing.T) (*identity.Service, *keys.Manager, *fakeDirectory, *store.MemoryKV) {
	t.Helper()
	kv := store.NewMemoryKV()
	km := keys.New(kv, crypto.NewRSAProvider(2048), nil)
	dir := &fakeDirectory{keys: map[domain.UserID]string{}}
	return identity.New(km, dir, kv, me{}, nil), km, dir, kv
}

func TestEnable(t *testing.T) {
	s, km, dir, kv := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	assert.False(t, s.CanEncrypt())

	require.NoError(t, s.Enable(ctx))
	assert.True(t, s.IsAvailable())
	assert.True(t, s.Enabled())
	assert.True(t, s.CanEncrypt())

	require.Len(t, dir.published, 1)
	require.NotNil(t, dir.published[0].PublicKey)
	assert.True(t, dir.published[0].Enabled)
	want, err := km.PublicKeyBase64()
	require.NoError(t, err)
	assert.Equal(t, want, *dir.published[0].PublicKey)

	flag, _, _ := kv.Get(domain.KeyEncryptionOn)
	assert.Equal(t, "true", flag)
	assert.NotEmpty(t, s.Stats().Fingerprint)
}

func TestEnable_RegistrationFailureClearsKeys(t *testing.T) {
	s, _, dir, kv := newService(t)
	dir.fail = errors.New("server down")

	err := s.Enable(context.Background())
	require.Error(t, err)
	assert.False(t, s.IsAvailable())
	assert.False(t, s.Enabled())
	_, ok, _ := kv.Get(domain.KeyPrivateKey)
	assert.False(t, ok)
}

func TestEnable_RegistrationFailureRestoresPreviousKeys(t *testing.T) {
	s, km, dir, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx))
	before := km.Fingerprint()

	dir.fail = errors.New("server down")
	require.Error(t, s.Enable(ctx))
	assert.Equal(t, before, km.Fingerprint())
	assert.True(t, s.CanEncrypt())
}

func TestDisable(t *testing.T) {
	s, km, dir, kv := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx))
	dir.keys[2] = mustPublicKey(t)
	_, err := s.PeerKey(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, s.Disable(ctx))
	assert.False(t, s.IsAvailable())
	assert.False(t, s.Enabled())
	assert.Equal(t, 0, km.ContactCount())
	last := dir.published[len(dir.published)-1]
	assert.Nil(t, last.PublicKey)
	assert.False(t, last.Enabled)
	for _, k := range []string{domain.KeyPrivateKey, domain.KeyPublicKey, domain.KeyEncryptionOn} {
		_, ok, _ := kv.Get(k)
		assert.False(t, ok, k)
	}
}

func TestDisable_ServerFailureKeepsKeys(t *testing.T) {
	s, _, dir, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx))

	dir.fail = errors.New("nope")
	require.Error(t, s.Disable(ctx))
	assert.True(t, s.CanEncrypt())
}

func TestInitialize_ReloadsState(t *testing.T) {
	s, _, dir, kv := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx))

	km2 := keys.New(kv, crypto.NewRSAProvider(2048), nil)
	s2 := identity.New(km2, dir, kv, me{}, nil)
	require.NoError(t, s2.Initialize(ctx))
	assert.True(t, s2.CanEncrypt())
	assert.Equal(t, s.Fingerprint(), s2.Fingerprint())
}

func TestInitialize_CorruptedStorage(t *testing.T) {
	s, _, _, kv := newService(t)
	require.NoError(t, kv.Set(domain.KeyPublicKey, "AAAA"))

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrKeyStorageCorrupted)
	assert.False(t, s.CanEncrypt())
}

func TestPeerKey_FetchesOnce(t *testing.T) {
	s, _, dir, _ := newService(t)
	ctx := context.Background()
	dir.keys[5] = mustPublicKey(t)

	k1, err := s.PeerKey(ctx, 5)
	require.NoError(t, err)
	k2, err := s.PeerKey(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, 1, dir.fetches)

	_, err = s.PeerKey(ctx, 6)
	require.ErrorIs(t, err, domain.ErrEncryption)
}

func TestCanEncryptWith(t *testing.T) {
	s, _, dir, _ := newService(t)
	ctx := context.Background()
	dir.both = true

	ok, err := s.CanEncryptWith(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "local encryption is off")

	require.NoError(t, s.Enable(ctx))
	ok, err = s.CanEncryptWith(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckPassphrase(t *testing.T) {
	assert.ErrorIs(t, identity.CheckPassphrase("short"), identity.ErrWeakPassphrase)
	assert.ErrorIs(t, identity.CheckPassphrase("alllowercaseletters"), identity.ErrWeakPassphrase)
	assert.NoError(t, identity.CheckPassphrase("Correct-Horse-9"))
}

func mustPublicKey(t *testing.T) string {
	t.Helper()
	p := crypto.NewRSAProvider(2048)
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)
	spki, err := p.ExportPublicKey(kp.Public)
	require.NoError(t, err)
	return crypto.B64(spki)
}
