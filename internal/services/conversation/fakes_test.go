package conversation_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/account"
	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/services/conversation"
	"cipherchat/internal/services/identity"
	"cipherchat/internal/services/keys"
	"cipherchat/internal/services/message"
	"cipherchat/internal/services/recall"
	"cipherchat/internal/store"
)

var sentAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeServer is the shared REST backend seen by every client in a test.
type fakeServer struct {
	mu      sync.Mutex
	nextID  int
	keys    map[domain.UserID]string
	sent    []domain.Message
	convs   map[domain.UserID][]domain.Conversation
	history map[domain.UserID][]domain.Message
	marked  []domain.UserID
	// beforeReply runs after a message is stored and before the send call returns.
	beforeReply func(domain.Message)
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		keys:    map[domain.UserID]string{},
		convs:   map[domain.UserID][]domain.Conversation{},
		history: map[domain.UserID][]domain.Message{},
	}
}

type client struct {
	srv  *fakeServer
	self domain.UserID
}

func (c *client) PublishSettings(_ context.Context, s domain.EncryptionSettings) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if s.PublicKey == nil {
		delete(c.srv.keys, c.self)
	} else {
		c.srv.keys[c.self] = *s.PublicKey
	}
	return nil
}

func (c *client) FetchPublicKey(_ context.Context, u domain.UserID) (string, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.keys[u], nil
}

func (c *client) EncryptionStatus(_ context.Context, a, b domain.UserID) (bool, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.keys[a] != "" && c.srv.keys[b] != "", nil
}

func (c *client) store(m domain.Message) domain.Message {
	c.srv.mu.Lock()
	c.srv.nextID++
	m.ID = domain.MessageID(strconv.Itoa(c.srv.nextID))
	m.SenderID = c.self
	m.CreatedAt = sentAt
	c.srv.sent = append(c.srv.sent, m)
	hook := c.srv.beforeReply
	c.srv.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	return m
}

func (c *client) SendPlain(_ context.Context, to domain.UserID, content string) (domain.Message, error) {
	return c.store(domain.Message{ReceiverID: to, Content: content, Kind: "TEXT"}), nil
}

func (c *client) SendEncrypted(_ context.Context, to domain.UserID, env domain.Envelope) (domain.Message, error) {
	e := env
	return c.store(domain.Message{ReceiverID: to, Kind: "ENCRYPTED", Encrypted: true, Envelope: &e}), nil
}

func (c *client) Conversations(context.Context) ([]domain.Conversation, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return append([]domain.Conversation(nil), c.srv.convs[c.self]...), nil
}

func (c *client) Messages(_ context.Context, peer domain.UserID) ([]domain.Message, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return append([]domain.Message(nil), c.srv.history[peer]...), nil
}

func (c *client) MarkRead(_ context.Context, peer domain.UserID) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.marked = append(c.srv.marked, peer)
	return nil
}

func (s *fakeServer) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type sentFrame struct {
	Type    domain.FrameType
	Payload any
}

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[domain.FrameType][]*handler
	sent     []sentFrame
}

type handler struct {
	fn domain.FrameHandler
	t  *fakeTransport
	ft domain.FrameType
}

func (h *handler) Unsubscribe() {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	list := h.t.handlers[h.ft]
	for i, x := range list {
		if x == h {
			h.t.handlers[h.ft] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[domain.FrameType][]*handler{}}
}

func (t *fakeTransport) Connect(context.Context, string) error { return nil }
func (t *fakeTransport) Disconnect()                           {}
func (t *fakeTransport) State() domain.ConnectionState         { return domain.Connected }

func (t *fakeTransport) OnConnectionChange(domain.ConnectionListener) domain.Subscription {
	return &handler{t: t}
}

func (t *fakeTransport) Send(ft domain.FrameType, payload any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentFrame{Type: ft, Payload: payload})
	return true
}

func (t *fakeTransport) Subscribe(ft domain.FrameType, fn domain.FrameHandler) domain.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := &handler{fn: fn, t: t, ft: ft}
	t.handlers[ft] = append(t.handlers[ft], h)
	return h
}

func (t *fakeTransport) deliver(tb testing.TB, ft domain.FrameType, payload any) {
	tb.Helper()
	data, err := json.Marshal(payload)
	require.NoError(tb, err)
	t.mu.Lock()
	list := append([]*handler(nil), t.handlers[ft]...)
	t.mu.Unlock()
	for _, h := range list {
		require.NoError(tb, h.fn(domain.Frame{Type: ft, Data: data}))
	}
}

func (t *fakeTransport) subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, l := range t.handlers {
		n += len(l)
	}
	return n
}

func (t *fakeTransport) frames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentFrame(nil), t.sent...)
}

var provider = crypto.NewRSAProvider(2048)

type harness struct {
	self      domain.UserID
	session   *conversation.Session
	identity  *identity.Service
	keys      *keys.Manager
	recall    *recall.Cache
	cipher    *message.Service
	transport *fakeTransport
	clock     *clock.Mock
	srv       *fakeServer
}

func newHarness(t *testing.T, srv *fakeServer, self domain.UserID) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(sentAt)

	kv := store.NewMemoryKV()
	user := account.New(nil, nil)
	user.Override(self, "token-"+self.String())
	c := &client{srv: srv, self: self}

	km := keys.New(kv, provider, nil)
	ident := identity.New(km, c, kv, user, nil)
	require.NoError(t, ident.Initialize(context.Background()))
	rc := recall.New(kv, recall.Options{Clock: mock}, nil)
	cipher := message.New(provider, nil)
	tr := newFakeTransport()

	s := conversation.New(conversation.Deps{
		User:       user,
		Keys:       km,
		Cipher:     cipher,
		Recall:     rc,
		Encryption: ident,
		Delivery:   c,
		History:    c,
		Transport:  tr,
	}, conversation.Options{Clock: mock}, nil)
	s.Start()
	t.Cleanup(s.Close)

	return &harness{
		self:      self,
		session:   s,
		identity:  ident,
		keys:      km,
		recall:    rc,
		cipher:    cipher,
		transport: tr,
		clock:     mock,
		srv:       srv,
	}
}
