package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

const (
	// Placeholder replaces the content of a message that could not be decrypted.
	Placeholder = "[encrypted message could not be decrypted]"

	DefaultTypingTimeout = 3 * time.Second
)

// Deps are the collaborators a Session orchestrates.
type Deps struct {
	User       domain.CurrentUser
	Keys       domain.KeyManager
	Cipher     domain.MessageCipher
	Recall     domain.PlaintextCache
	Encryption domain.EncryptionService
	Delivery   domain.Delivery
	History    domain.History
	Transport  domain.Transport
}

// Options tune a Session. Zero values select the defaults.
type Options struct {
	TypingTimeout time.Duration
	Clock         clock.Clock
}

// Session holds the visible chat state for one signed-in user: the ordered
// conversation summaries, the open conversation's messages, per-peer
// encryption toggles and typing indicators.
type Session struct {
	deps          Deps
	clock         clock.Clock
	typingTimeout time.Duration
	log           *logrus.Entry
	observers     *observers

	mu            sync.Mutex
	conversations []domain.Conversation
	open          domain.UserID
	messages      []domain.Message
	seen          map[domain.MessageID]struct{}
	encryptFor    map[domain.UserID]bool
	typing        map[domain.UserID]*typingState
	subs          []domain.Subscription
}

// New returns a Session. Call Start to bind it to the transport.
func New(deps Deps, opts Options, log *logrus.Entry) *Session {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	log = logging.OrDiscard(log, "conversation")
	return &Session{
		deps:          deps,
		clock:         opts.Clock,
		typingTimeout: opts.TypingTimeout,
		log:           log,
		observers:     &observers{log: log},
		seen:          make(map[domain.MessageID]struct{}),
		encryptFor:    make(map[domain.UserID]bool),
		typing:        make(map[domain.UserID]*typingState),
	}
}

// Start subscribes the session to every inbound frame type it consumes.
// Calling Start twice has no additional effect.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 || s.deps.Transport == nil {
		return
	}
	t := s.deps.Transport
	s.subs = []domain.Subscription{
		t.Subscribe(domain.FrameNewMessage, s.onMessageFrame),
		t.Subscribe(domain.FrameEncryptedMessage, s.onMessageFrame),
		t.Subscribe(domain.FrameUserOnline, s.onPresenceFrame(true)),
		t.Subscribe(domain.FrameUserOffline, s.onPresenceFrame(false)),
		t.Subscribe(domain.FrameMessageRead, s.onReadFrame),
		t.Subscribe(domain.FrameTyping, s.onTypingFrame),
		t.Subscribe(domain.FrameFriendRequest, s.onFriendFrame(EventFriendRequest)),
		t.Subscribe(domain.FrameFriendResponse, s.onFriendFrame(EventFriendResponse)),
	}
}

// Close drops the transport subscriptions and stops typing timers.
func (s *Session) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	for peer, st := range s.typing {
		st.timer.Stop()
		delete(s.typing, peer)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Reset forgets all session state, including per-peer encryption toggles.
// Subscriptions stay in place.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.typing {
		st.timer.Stop()
	}
	s.conversations = nil
	s.open = 0
	s.messages = nil
	s.seen = make(map[domain.MessageID]struct{})
	s.encryptFor = make(map[domain.UserID]bool)
	s.typing = make(map[domain.UserID]*typingState)
}

// OnEvent registers fn for every state change the session observes.
func (s *Session) OnEvent(fn func(Event)) domain.Subscription { return s.observers.add(fn) }

// Conversations returns the summaries, most recent first.
func (s *Session) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversations)
}

// Conversation returns the summary for peer.
func (s *Session) Conversation(peer domain.UserID) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(peer); i >= 0 {
		return s.conversations[i], true
	}
	return domain.Conversation{}, false
}

// Messages returns the open conversation's messages in insertion order.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Open returns the peer of the open conversation, or 0.
func (s *Session) Open() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// LoadConversations replaces the summaries with the server's list. Locally
// opened conversations the server does not know yet are kept at the top.
func (s *Session) LoadConversations(ctx context.Context) ([]domain.Conversation, error) {
	list, err := s.deps.History.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Conversation
	for _, c := range s.conversations {
		if c.PendingServerCreation && !slices.ContainsFunc(list, func(x domain.Conversation) bool { return x.PeerID == c.PeerID }) {
			pending = append(pending, c)
		}
	}
	s.conversations = append(pending, list...)
	return slices.Clone(s.conversations), nil
}

// OpenConversation makes peer's conversation the open one. A known
// conversation has its history fetched and marked read; an unknown peer gets
// a pending conversation that the server creates with the first message.
func (s *Session) OpenConversation(ctx context.Context, peer domain.UserID) (domain.Conversation, error) {
	s.mu.Lock()
	i := s.indexLocked(peer)
	s.setOpenLocked(peer)
	if i < 0 {
		c := domain.Conversation{
			PeerID:                peer,
			LastMessageTime:       s.clock.Now(),
			PendingServerCreation: true,
		}
		s.conversations = slices.Insert(s.conversations, 0, c)
		s.mu.Unlock()
		s.log.WithField("peer", peer).Debug("pending conversation opened")
		return c, nil
	}
	c := s.conversations[i]
	s.mu.Unlock()

	history, err := s.deps.History.Messages(ctx, peer)
	if err != nil {
		return c, fmt.Errorf("load messages with %s: %w", peer, err)
	}
	resolved := make([]domain.Message, 0, len(history))
	for _, m := range history {
		resolved = append(resolved, s.resolve(m))
	}

	s.mu.Lock()
	if s.open == peer {
		// Messages that arrived while the history was in flight stay after it.
		live := s.messages
		s.messages = make([]domain.Message, 0, len(resolved)+len(live))
		ids := make(map[domain.MessageID]struct{}, len(resolved))
		for _, m := range append(resolved, live...) {
			if _, dup := ids[m.ID]; dup {
				continue
			}
			ids[m.ID] = struct{}{}
			s.seen[m.ID] = struct{}{}
			s.messages = append(s.messages, m)
		}
	}
	s.mu.Unlock()

	if err := s.MarkRead(ctx, peer); err != nil {
		s.log.WithError(err).WithField("peer", peer).Warn("mark read failed")
	}
	c, _ = s.Conversation(peer)
	return c, nil
}

// CloseConversation leaves the open conversation.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	s.setOpenLocked(0)
	s.mu.Unlock()
}

// MarkRead marks peer's messages read on the server, tells peer through the
// transport, and clears the local unread count.
func (s *Session) MarkRead(ctx context.Context, peer domain.UserID) error {
	if err := s.deps.History.MarkRead(ctx, peer); err != nil {
		return err
	}
	if self, err := s.deps.User.UserID(); err == nil && s.deps.Transport != nil {
		s.deps.Transport.Send(domain.FrameMessageRead, domain.ReadReceipt{SenderID: peer, ReceiverID: self})
	}
	s.mu.Lock()
	if i := s.indexLocked(peer); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
	s.mu.Unlock()
	return nil
}

// ToggleEncryption flips the per-peer encryption switch and returns the new
// value. It requires account-level encryption. The peer does not need a
// published key; a missing key surfaces as ErrEncryption on send.
// Toggles live in memory only and reset with the session.
func (s *Session) ToggleEncryption(peer domain.UserID) (bool, error) {
	if !s.deps.Encryption.CanEncrypt() {
		return false, domain.ErrEncryptionNotEnabled
	}
	s.mu.Lock()
	on := !s.encryptFor[peer]
	s.encryptFor[peer] = on
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"peer": peer, "encrypt": on}).Info("conversation encryption toggled")
	return on, nil
}

// SetEncryption sets the per-peer encryption switch.
func (s *Session) SetEncryption(peer domain.UserID, on bool) error {
	if on && !s.deps.Encryption.CanEncrypt() {
		return domain.ErrEncryptionNotEnabled
	}
	s.mu.Lock()
	s.encryptFor[peer] = on
	s.mu.Unlock()
	return nil
}

// EncryptionEnabledFor reports the per-peer encryption switch.
func (s *Session) EncryptionEnabledFor(peer domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encryptFor[peer]
}

func (s *Session) indexLocked(peer domain.UserID) int {
	return slices.IndexFunc(s.conversations, func(c domain.Conversation) bool { return c.PeerID == peer })
}

func (s *Session) setOpenLocked(peer domain.UserID) {
	if s.open == peer {
		return
	}
	s.open = peer
	s.messages = nil
	for p, st := range s.typing {
		st.timer.Stop()
		delete(s.typing, p)
	}
}
