package conversation

import (
	"context"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

// SendMessage delivers content to peer. The message is encrypted when
// account-level encryption can encrypt and the peer's toggle is on; the
// plaintext of an encrypted message is kept in the recall cache under the
// server-assigned id. On success the message is appended to the open
// conversation and the peer's summary moves to the top. A failed encryption
// returns ErrEncryption and changes nothing.
func (s *Session) SendMessage(ctx context.Context, peer domain.UserID, content string) (domain.Message, error) {
	self, err := s.deps.User.UserID()
	if err != nil {
		return domain.Message{}, err
	}

	var m domain.Message
	if s.deps.Encryption.CanEncrypt() && s.EncryptionEnabledFor(peer) {
		m, err = s.sendEncrypted(ctx, peer, content)
	} else {
		m, err = s.deps.Delivery.SendPlain(ctx, peer, content)
	}
	if err != nil {
		s.log.WithError(err).WithField("peer", peer).Warn("send failed")
		return domain.Message{}, err
	}

	if m.SenderID == 0 {
		m.SenderID = self
	}
	if m.ReceiverID == 0 {
		m.ReceiverID = peer
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock.Now()
	}
	s.apply(m, self)
	s.log.WithFields(logrus.Fields{"peer": peer, "id": m.ID, "encrypted": m.Encrypted}).Debug("message sent")
	s.observers.notify(Event{Kind: EventMessage, Peer: peer, Message: m})
	return m, nil
}

func (s *Session) sendEncrypted(ctx context.Context, peer domain.UserID, content string) (domain.Message, error) {
	pub, err := s.deps.Encryption.PeerKey(ctx, peer)
	if err != nil {
		return domain.Message{}, err
	}
	env, err := s.deps.Cipher.Encrypt(content, pub)
	if err != nil {
		return domain.Message{}, err
	}
	m, err := s.deps.Delivery.SendEncrypted(ctx, peer, env)
	if err != nil {
		return domain.Message{}, err
	}
	if m.ID != "" {
		if err := s.deps.Recall.Store(m.ID, peer, content, m.CreatedAt); err != nil {
			s.log.WithError(err).WithField("id", m.ID).Warn("recall store failed")
		}
	}
	m.Content = content
	m.Encrypted = true
	if m.Envelope == nil {
		m.Envelope = &env
	}
	return m, nil
}

// SendTyping tells peer whether we are typing. It reports false when the
// transport is not connected.
func (s *Session) SendTyping(peer domain.UserID, typing bool) bool {
	if s.deps.Transport == nil {
		return false
	}
	return s.deps.Transport.Send(domain.FrameTyping, domain.TypingSignal{ReceiverID: peer, Typing: typing})
}
