package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

const writeWait = 5 * time.Second

// peer is one WebSocket session. A user may hold several.
type peer struct {
	user domain.UserID
	conn *websocket.Conn

	wmu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseUserID(r.URL.Query().Get("token"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	p := &peer{user: id, conn: conn}

	s.mu.Lock()
	s.userLocked(id)
	set, ok := s.conns[id]
	if !ok {
		set = make(map[*peer]struct{})
		s.conns[id] = set
	}
	first := len(set) == 0
	set[p] = struct{}{}
	s.mu.Unlock()

	log := s.log.WithField("user", id)
	log.Info("session opened")
	if first {
		s.broadcast(domain.FrameUserOnline, domain.PresenceEvent{UserID: id, Online: true})
	}

	s.readLoop(p, log)

	s.mu.Lock()
	delete(set, p)
	last := len(set) == 0
	if last {
		delete(s.conns, id)
	}
	s.mu.Unlock()
	_ = conn.Close()

	log.Info("session closed")
	if last {
		s.broadcast(domain.FrameUserOffline, domain.PresenceEvent{UserID: id, Online: false})
	}
}

func (s *Server) readLoop(p *peer, log *logrus.Entry) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("read failed")
			}
			return
		}
		if string(data) == "ping" {
			s.mu.Lock()
			drop := s.noPong
			s.mu.Unlock()
			if !drop {
				_ = p.write([]byte("pong"))
			}
			continue
		}
		var f domain.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.WithError(err).Debug("ignoring malformed frame")
			continue
		}
		s.route(p, f, log)
	}
}

// route forwards client frames that concern another user.
func (s *Server) route(p *peer, f domain.Frame, log *logrus.Entry) {
	switch f.Type {
	case domain.FrameTyping:
		var sig domain.TypingSignal
		if err := f.Decode(&sig); err != nil || sig.ReceiverID <= 0 {
			return
		}
		s.pushTo(sig.ReceiverID, domain.FrameTyping, domain.TypingEvent{UserID: p.user, Typing: sig.Typing})
	case domain.FrameMessageRead:
		var rr domain.ReadReceipt
		if err := f.Decode(&rr); err != nil || rr.SenderID <= 0 {
			return
		}
		s.pushTo(rr.SenderID, domain.FrameMessageRead, domain.ReadReceipt{SenderID: rr.SenderID, ReceiverID: p.user})
	default:
		log.WithField("type", f.Type).Debug("unhandled frame")
	}
}

func encodeFrame(t domain.FrameType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.Frame{Type: t, Data: data})
}

func (s *Server) pushTo(user domain.UserID, t domain.FrameType, payload any) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.conns[user]))
	for p := range s.conns[user] {
		targets = append(targets, p)
	}
	s.mu.Unlock()
	s.send(targets, t, payload)
}

func (s *Server) broadcast(t domain.FrameType, payload any) {
	s.mu.Lock()
	var targets []*peer
	for _, set := range s.conns {
		for p := range set {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()
	s.send(targets, t, payload)
}

func (s *Server) send(targets []*peer, t domain.FrameType, payload any) {
	if len(targets) == 0 {
		return
	}
	data, err := encodeFrame(t, payload)
	if err != nil {
		s.log.WithError(err).Error("encode frame")
		return
	}
	for _, p := range targets {
		if err := p.write(data); err != nil {
			s.log.WithError(err).WithField("user", p.user).Debug("push failed")
		}
	}
}

// Close drops every open session.
func (s *Server) Close() {
	s.mu.Lock()
	var all []*peer
	for _, set := range s.conns {
		for p := range set {
			all = append(all, p)
		}
	}
	s.mu.Unlock()
	for _, p := range all {
		_ = p.conn.Close()
	}
}
