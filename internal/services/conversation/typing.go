package conversation

import (
	"slices"

	"github.com/benbjohnson/clock"

	"cipherchat/internal/domain"
)

type typingState struct {
	timer *clock.Timer
}

// setTyping records peer's typing flag. A positive flag clears itself after
// the typing timeout even if no negative signal follows.
func (s *Session) setTyping(peer domain.UserID, on bool) {
	s.mu.Lock()
	if st, ok := s.typing[peer]; ok {
		st.timer.Stop()
		delete(s.typing, peer)
	}
	if on {
		st := &typingState{}
		st.timer = s.clock.AfterFunc(s.typingTimeout, func() { s.expireTyping(peer, st) })
		s.typing[peer] = st
	}
	s.mu.Unlock()
	s.observers.notify(Event{Kind: EventTyping, Peer: peer, Typing: on})
}

func (s *Session) expireTyping(peer domain.UserID, st *typingState) {
	s.mu.Lock()
	if s.typing[peer] != st {
		s.mu.Unlock()
		return
	}
	delete(s.typing, peer)
	s.mu.Unlock()
	s.observers.notify(Event{Kind: EventTyping, Peer: peer, Typing: false})
}

// IsTyping reports whether peer is currently typing.
func (s *Session) IsTyping(peer domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typing[peer]
	return ok
}

// TypingPeers returns the peers currently typing, in ascending id order.
func (s *Session) TypingPeers() []domain.UserID {
	s.mu.Lock()
	out := make([]domain.UserID, 0, len(s.typing))
	for p := range s.typing {
		out = append(out, p)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}
