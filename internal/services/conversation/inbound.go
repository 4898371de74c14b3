package conversation

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

// ReceiveInbound resolves the content of an inbound message and adds it to
// the session. Encrypted content comes from the recall cache when present,
// otherwise from decryption; a message that cannot be decrypted is kept with
// Placeholder as its content and Undecryptable set. It returns the message as
// shown and false when the id was already known.
func (s *Session) ReceiveInbound(m domain.Message) (domain.Message, bool) {
	self, err := s.deps.User.UserID()
	if err != nil {
		s.log.WithError(err).Warn("inbound message without a current user")
	}
	m = s.resolve(m)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock.Now()
	}
	if !s.apply(m, self) {
		return m, false
	}
	s.observers.notify(Event{Kind: EventMessage, Peer: m.Peer(self), Message: m})
	return m, true
}

// resolve fills in the content of an encrypted message: recall cache first,
// then decryption, then the placeholder.
func (s *Session) resolve(m domain.Message) domain.Message {
	if !m.Encrypted {
		return m
	}
	if m.ID != "" {
		if text, ok := s.deps.Recall.Recall(m.ID); ok {
			m.Content = text
			return m
		}
	}
	if m.Envelope == nil {
		return undecryptable(m, "envelope missing")
	}
	var priv domain.PrivateKey
	if kp, ok := s.deps.Keys.Current(); ok {
		priv = kp.Private
	}
	text, err := s.deps.Cipher.Decrypt(*m.Envelope, priv)
	if err != nil {
		s.log.WithFields(logrus.Fields{"id": m.ID, "sender": m.SenderID}).WithError(err).Debug("message not decryptable")
		return undecryptable(m, err.Error())
	}
	m.Content = text
	return m
}

func undecryptable(m domain.Message, cause string) domain.Message {
	m.Content = Placeholder
	m.Undecryptable = true
	m.DecryptError = cause
	return m
}

// apply records m once per id: appended to the open conversation when it
// belongs there, and folded into the peer's summary. A repeated id only
// replaces an earlier placeholder with real content.
func (s *Session) apply(m domain.Message, self domain.UserID) bool {
	peer := m.Peer(self)
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID != "" {
		if _, dup := s.seen[m.ID]; dup {
			s.upgradeLocked(m, peer)
			return false
		}
		s.seen[m.ID] = struct{}{}
	}
	if s.open == peer {
		s.messages = append(s.messages, m)
	}

	i := s.indexLocked(peer)
	var c domain.Conversation
	if i >= 0 {
		c = s.conversations[i]
		s.conversations = slices.Delete(s.conversations, i, i+1)
	} else {
		c = domain.Conversation{PeerID: peer}
		s.log.WithField("peer", peer).Debug("conversation synthesized from message")
	}
	c.LastMessage = m.Content
	c.LastMessageTime = m.CreatedAt
	c.PendingServerCreation = false
	if m.SenderID != self && s.open != peer {
		c.UnreadCount++
	}
	s.conversations = slices.Insert(s.conversations, 0, c)
	return true
}

func (s *Session) upgradeLocked(m domain.Message, peer domain.UserID) {
	if m.Undecryptable {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == m.ID && s.messages[i].Undecryptable {
			s.messages[i] = m
		}
	}
	if i := s.indexLocked(peer); i >= 0 && s.conversations[i].LastMessage == Placeholder {
		s.conversations[i].LastMessage = m.Content
	}
}

func (s *Session) onMessageFrame(f domain.Frame) error {
	var w domain.WireMessage
	if err := f.Decode(&w); err != nil {
		return fmt.Errorf("%s payload: %w", f.Type, err)
	}
	s.ReceiveInbound(w.Message())
	return nil
}

func (s *Session) onPresenceFrame(online bool) domain.FrameHandler {
	return func(f domain.Frame) error {
		var ev domain.PresenceEvent
		if err := f.Decode(&ev); err != nil {
			return fmt.Errorf("%s payload: %w", f.Type, err)
		}
		s.mu.Lock()
		if i := s.indexLocked(ev.UserID); i >= 0 {
			s.conversations[i].Online = online
		}
		s.mu.Unlock()
		s.observers.notify(Event{Kind: EventPresence, Peer: ev.UserID, Online: online})
		return nil
	}
}

func (s *Session) onReadFrame(f domain.Frame) error {
	var r domain.ReadReceipt
	if err := f.Decode(&r); err != nil {
		return fmt.Errorf("%s payload: %w", f.Type, err)
	}
	self, _ := s.deps.User.UserID()
	peer := r.SenderID
	if peer == self {
		peer = r.ReceiverID
	}

	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].SenderID == r.SenderID && s.messages[i].ReceiverID == r.ReceiverID {
			s.messages[i].Read = true
		}
	}
	if r.ReceiverID == self {
		if i := s.indexLocked(r.SenderID); i >= 0 {
			s.conversations[i].UnreadCount = 0
		}
	}
	s.mu.Unlock()

	s.observers.notify(Event{Kind: EventRead, Peer: peer, Receipt: r})
	return nil
}

func (s *Session) onTypingFrame(f domain.Frame) error {
	var ev domain.TypingEvent
	if err := f.Decode(&ev); err != nil {
		return fmt.Errorf("%s payload: %w", f.Type, err)
	}
	s.setTyping(ev.UserID, ev.Typing)
	return nil
}

func (s *Session) onFriendFrame(kind EventKind) domain.FrameHandler {
	return func(f domain.Frame) error {
		s.observers.notify(Event{Kind: kind, Data: f.Data})
		return nil
	}
}
