package devserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/account"
	"cipherchat/internal/api"
	"cipherchat/internal/devserver"
	"cipherchat/internal/domain"
	"cipherchat/internal/store"
)

func newServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	srv := devserver.New(nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func clientFor(t *testing.T, ts *httptest.Server, id domain.UserID) *api.Client {
	t.Helper()
	r := account.New(store.NewMemoryKV(), store.NewMemoryKV())
	r.Override(id, id.String())
	return api.New(ts.URL, r, nil)
}

func dial(t *testing.T, ts *httptest.Server, id domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat?token=" + id.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f domain.Frame
	require.NoError(t, json.Unmarshal(data, &f), string(data))
	return f
}

// readUntil skips frames of other types, such as presence broadcasts.
func readUntil(t *testing.T, conn *websocket.Conn, want domain.FrameType) domain.Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		if f := readFrame(t, conn); f.Type == want {
			return f
		}
	}
	t.Fatalf("no %s frame", want)
	return domain.Frame{}
}

func TestUnauthorized(t *testing.T) {
	_, ts := newServer(t)
	resp, err := http.Get(ts.URL + "/messages/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/chat?token=abc", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestSettingsAndKeys(t *testing.T) {
	srv, ts := newServer(t)
	srv.AddUser(1, "alice")
	srv.AddUser(2, "bob")
	ctx := context.Background()
	alice, bob := clientFor(t, ts, 1), clientFor(t, ts, 2)

	ok, err := alice.EncryptionStatus(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	pk := "QUJD"
	require.NoError(t, alice.PublishSettings(ctx, domain.EncryptionSettings{PublicKey: &pk, Enabled: true}))
	got, err := bob.FetchPublicKey(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	ok, err = alice.EncryptionStatus(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok, "bob has not enabled")

	pk2 := "REVG"
	require.NoError(t, bob.PublishSettings(ctx, domain.EncryptionSettings{PublicKey: &pk2, Enabled: true}))
	ok, err = alice.EncryptionStatus(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, alice.PublishSettings(ctx, domain.EncryptionSettings{}))
	got, err = bob.FetchPublicKey(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = bob.FetchPublicKey(ctx, 99)
	var reqErr *domain.ServerRequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestMessagesAndHistory(t *testing.T) {
	_, ts := newServer(t)
	ctx := context.Background()
	alice, bob := clientFor(t, ts, 1), clientFor(t, ts, 2)

	m1, err := alice.SendPlain(ctx, 2, "hi bob")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageID("1"), m1.ID)
	assert.Equal(t, domain.UserID(1), m1.SenderID)
	assert.Equal(t, "hi bob", m1.Content)

	env := domain.Envelope{Ciphertext: "Y3Q=", WrappedKey: "a2V5", IV: "aXY="}
	m2, err := alice.SendEncrypted(ctx, 2, env)
	require.NoError(t, err)
	assert.True(t, m2.Encrypted)
	require.NotNil(t, m2.Envelope)
	assert.Equal(t, env, *m2.Envelope)

	_, err = alice.SendEncrypted(ctx, 2, domain.Envelope{Ciphertext: "Y3Q="})
	assert.Error(t, err)

	n, err := bob.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	convs, err := bob.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, domain.UserID(1), convs[0].PeerID)
	assert.Equal(t, 2, convs[0].UnreadCount)

	msgs, err := bob.Messages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi bob", msgs[0].Content)
	assert.True(t, msgs[1].Encrypted)

	require.NoError(t, bob.MarkRead(ctx, 1))
	n, err = bob.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Sender's unread count is unaffected by its own messages.
	n, err = alice.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPushNewMessage(t *testing.T) {
	_, ts := newServer(t)
	bobConn := dial(t, ts, 2)
	aliceConn := dial(t, ts, 1)

	_, err := clientFor(t, ts, 1).SendPlain(context.Background(), 2, "pushed")
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{bobConn, aliceConn} {
		f := readUntil(t, conn, domain.FrameNewMessage)
		var wm domain.WireMessage
		require.NoError(t, f.Decode(&wm))
		assert.Equal(t, "pushed", wm.Content)
		assert.Equal(t, domain.UserID(2), wm.ReceiverID)
	}
}

func TestPresence(t *testing.T) {
	srv, ts := newServer(t)
	watcher := dial(t, ts, 9)

	first := dial(t, ts, 1)
	f := readUntil(t, watcher, domain.FrameUserOnline)
	var ev domain.PresenceEvent
	require.NoError(t, f.Decode(&ev))
	assert.Equal(t, domain.PresenceEvent{UserID: 1, Online: true}, ev)

	second := dial(t, ts, 1)
	require.Eventually(t, func() bool { return srv.Online(1) }, time.Second, 10*time.Millisecond)

	// Closing one of two sessions keeps the user online.
	require.NoError(t, first.Close())
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.True(t, srv.Online(1))

	require.NoError(t, second.Close())
	f = readUntil(t, watcher, domain.FrameUserOffline)
	require.NoError(t, f.Decode(&ev))
	assert.Equal(t, domain.PresenceEvent{UserID: 1, Online: false}, ev)
	assert.False(t, srv.Online(1))
}

func TestPingPong(t *testing.T) {
	srv, ts := newServer(t)
	conn := dial(t, ts, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if string(data) == "pong" {
			break
		}
	}

	srv.DropPongs(true)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %q", data)
}

func TestTypingAndReadForwarding(t *testing.T) {
	_, ts := newServer(t)
	alice := dial(t, ts, 1)
	bob := dial(t, ts, 2)

	typing, _ := json.Marshal(domain.Frame{Type: domain.FrameTyping, Data: json.RawMessage(`{"receiverId":2,"isTyping":true}`)})
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, typing))

	f := readUntil(t, bob, domain.FrameTyping)
	var te domain.TypingEvent
	require.NoError(t, f.Decode(&te))
	assert.Equal(t, domain.TypingEvent{UserID: 1, Typing: true}, te)

	read, _ := json.Marshal(domain.Frame{Type: domain.FrameMessageRead, Data: json.RawMessage(`{"senderId":1,"receiverId":2}`)})
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, read))

	f = readUntil(t, alice, domain.FrameMessageRead)
	var rr domain.ReadReceipt
	require.NoError(t, f.Decode(&rr))
	assert.Equal(t, domain.ReadReceipt{SenderID: 1, ReceiverID: 2}, rr)
}
