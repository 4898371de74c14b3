package conversation

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

// EventKind classifies session events.
type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventPresence
	EventRead
	EventTyping
	EventFriendRequest
	EventFriendResponse
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPresence:
		return "presence"
	case EventRead:
		return "read"
	case EventTyping:
		return "typing"
	case EventFriendRequest:
		return "friend_request"
	case EventFriendResponse:
		return "friend_response"
	default:
		return "unknown"
	}
}

// Event is one change observed by the session. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind    EventKind
	Peer    domain.UserID
	Message domain.Message
	Online  bool
	Typing  bool
	Receipt domain.ReadReceipt
	// Data is the raw payload of friend request and response frames.
	Data json.RawMessage
}

type observers struct {
	log *logrus.Entry

	mu   sync.RWMutex
	list []*observer
}

type observer struct {
	fn   func(Event)
	set  *observers
	once sync.Once
}

func (o *observer) Unsubscribe() {
	o.once.Do(func() {
		o.set.mu.Lock()
		defer o.set.mu.Unlock()
		if i := slices.Index(o.set.list, o); i >= 0 {
			o.set.list = slices.Delete(slices.Clone(o.set.list), i, i+1)
		}
	})
}

func (s *observers) add(fn func(Event)) domain.Subscription {
	o := &observer{fn: fn, set: s}
	s.mu.Lock()
	s.list = append(s.list, o)
	s.mu.Unlock()
	return o
}

func (s *observers) notify(ev Event) {
	s.mu.RLock()
	list := slices.Clone(s.list)
	s.mu.RUnlock()
	for _, o := range list {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log.WithFields(logrus.Fields{"panic": p, "event": ev.Kind}).Warn("session observer panicked")
				}
			}()
			o.fn(ev)
		}()
	}
}
