package transport

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

// Registry dispatches typed frames to handlers in registration order.
type Registry struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers map[domain.FrameType][]*subscription
}

type subscription struct {
	id   string
	typ  domain.FrameType
	fn   domain.FrameHandler
	reg  *Registry
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.reg.remove(s) })
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{log: log, handlers: make(map[domain.FrameType][]*subscription)}
}

// Subscribe appends h to the handlers for t. The returned handle removes
// exactly this registration, even if the same function is registered twice.
func (r *Registry) Subscribe(t domain.FrameType, h domain.FrameHandler) domain.Subscription {
	s := &subscription{id: uuid.NewString(), typ: t, fn: h, reg: r}
	r.mu.Lock()
	r.handlers[t] = append(r.handlers[t], s)
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"type": t, "subscription": s.id}).Debug("handler subscribed")
	return s
}

func (r *Registry) remove(s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[s.typ]
	if i := slices.Index(list, s); i >= 0 {
		r.handlers[s.typ] = slices.Delete(slices.Clone(list), i, i+1)
	}
	if len(r.handlers[s.typ]) == 0 {
		delete(r.handlers, s.typ)
	}
}

// Count returns the number of handlers registered for t.
func (r *Registry) Count(t domain.FrameType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[t])
}

// Dispatch calls every handler registered for f.Type. A handler that
// returns an error or panics is logged and the rest still run.
// It returns the number of handlers invoked.
func (r *Registry) Dispatch(f domain.Frame) int {
	r.mu.RLock()
	list := slices.Clone(r.handlers[f.Type])
	r.mu.RUnlock()

	if len(list) == 0 {
		r.log.WithField("type", f.Type).Debug("no handler for frame")
		return 0
	}
	for _, s := range list {
		if err := s.call(f); err != nil {
			r.log.WithFields(logrus.Fields{
				"type":         f.Type,
				"subscription": s.id,
			}).WithError(err).Warn("frame handler failed")
		}
	}
	return len(list)
}

func (s *subscription) call(f domain.Frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return s.fn(f)
}

// listeners is the ordered set of connection listeners.
type listeners struct {
	log *logrus.Entry

	mu   sync.RWMutex
	list []*listener
}

type listener struct {
	fn   domain.ConnectionListener
	set  *listeners
	once sync.Once
}

func (l *listener) Unsubscribe() {
	l.once.Do(func() {
		l.set.mu.Lock()
		defer l.set.mu.Unlock()
		if i := slices.Index(l.set.list, l); i >= 0 {
			l.set.list = slices.Delete(slices.Clone(l.set.list), i, i+1)
		}
	})
}

func (s *listeners) add(fn domain.ConnectionListener) domain.Subscription {
	l := &listener{fn: fn, set: s}
	s.mu.Lock()
	s.list = append(s.list, l)
	s.mu.Unlock()
	return l
}

func (s *listeners) notify(ev domain.ConnectionEvent) {
	s.mu.RLock()
	list := slices.Clone(s.list)
	s.mu.RUnlock()
	for _, l := range list {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log.WithField("panic", p).Warn("connection listener panicked")
				}
			}()
			l.fn(ev)
		}()
	}
}
