package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
)

type settingsRequest struct {
	PublicKey *string `json:"publicKey"`
	Enabled   bool    `json:"e2eeEnabled"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	u := s.userLocked(self)
	u.enabled = req.Enabled
	u.publicKey = ""
	if req.PublicKey != nil {
		u.publicKey = *req.PublicKey
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user": self, "enabled": req.Enabled}).Info("encryption settings updated")
	writeOK(w, "E2EE settings updated")
}

type publicKeyResponse struct {
	PublicKey *string `json:"publicKey"`
	Enabled   bool    `json:"e2eeEnabled"`
	Username  string  `json:"username"`
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	id, ok := pathUserID(r, "userId")
	if !ok {
		writeError(w, http.StatusOK, "invalid user id")
		return
	}
	s.mu.Lock()
	u, known := s.users[id]
	var resp publicKeyResponse
	if known {
		resp.Enabled = u.enabled
		resp.Username = u.name
		if u.publicKey != "" {
			pk := u.publicKey
			resp.PublicKey = &pk
		}
	}
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusOK, "user not found")
		return
	}
	writeOK(w, resp)
}

type statusResponse struct {
	User1Enabled bool `json:"user1E2EEEnabled"`
	User2Enabled bool `json:"user2E2EEEnabled"`
	BothEnabled  bool `json:"bothEnabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	a, okA := pathUserID(r, "a")
	b, okB := pathUserID(r, "b")
	if !okA || !okB {
		writeError(w, http.StatusOK, "invalid user id")
		return
	}
	s.mu.Lock()
	resp := statusResponse{User1Enabled: s.enabledLocked(a), User2Enabled: s.enabledLocked(b)}
	s.mu.Unlock()
	resp.BothEnabled = resp.User1Enabled && resp.User2Enabled
	writeOK(w, resp)
}

func (s *Server) enabledLocked(id domain.UserID) bool {
	u, ok := s.users[id]
	return ok && u.enabled && u.publicKey != ""
}

type encryptedRequest struct {
	ReceiverID       domain.UserID `json:"receiverId"`
	EncryptedContent string        `json:"encryptedContent"`
	EncryptedAESKey  string        `json:"encryptedAESKey"`
	IV               string        `json:"iv"`
}

func (s *Server) handleSendEncrypted(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	var req encryptedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	env := domain.Envelope{Ciphertext: req.EncryptedContent, WrappedKey: req.EncryptedAESKey, IV: req.IV}
	if req.ReceiverID <= 0 || !env.Complete() {
		writeError(w, http.StatusOK, "incomplete encrypted message")
		return
	}
	msg := s.store(domain.WireMessage{
		SenderID:        self,
		ReceiverID:      req.ReceiverID,
		Content:         req.EncryptedContent,
		MessageType:     "TEXT",
		EncryptedAESKey: req.EncryptedAESKey,
		IV:              req.IV,
		IsEncrypted:     true,
	})
	writeOK(w, msg)
}

type plainRequest struct {
	ReceiverID  domain.UserID `json:"receiverId"`
	Content     string        `json:"content"`
	MessageType string        `json:"messageType"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	var req plainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ReceiverID <= 0 || req.Content == "" {
		writeError(w, http.StatusOK, "receiver and content are required")
		return
	}
	if req.MessageType == "" {
		req.MessageType = "TEXT"
	}
	msg := s.store(domain.WireMessage{
		SenderID:    self,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		MessageType: req.MessageType,
	})
	writeOK(w, msg)
}

// store assigns an id and timestamp, records the message and pushes it to
// every connection of both parties.
func (s *Server) store(m domain.WireMessage) domain.WireMessage {
	s.mu.Lock()
	s.nextID++
	m.ID = json.Number(strconv.FormatInt(s.nextID, 10))
	m.CreatedAt = domain.WireTime{Time: s.clock.Now()}
	s.userLocked(m.SenderID)
	s.userLocked(m.ReceiverID)
	s.messages = append(s.messages, &storedMessage{WireMessage: m})
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"id":        m.ID,
		"sender":    m.SenderID,
		"receiver":  m.ReceiverID,
		"encrypted": m.IsEncrypted,
	}).Debug("message stored")

	s.pushTo(m.ReceiverID, domain.FrameNewMessage, m)
	if m.SenderID != m.ReceiverID {
		s.pushTo(m.SenderID, domain.FrameNewMessage, m)
	}
	return m
}

func (s *Server) handleConversations(w http.ResponseWriter, _ *http.Request, self domain.UserID) {
	s.mu.Lock()
	byPeer := make(map[domain.UserID]*domain.WireConversation)
	for _, m := range s.messages {
		if m.SenderID != self && m.ReceiverID != self {
			continue
		}
		peer := m.ReceiverID
		if peer == self {
			peer = m.SenderID
		}
		c, ok := byPeer[peer]
		if !ok {
			c = &domain.WireConversation{
				FriendID:       peer,
				FriendUsername: s.userLocked(peer).name,
				IsOnline:       len(s.conns[peer]) > 0,
			}
			byPeer[peer] = c
		}
		c.LastMessage = m.Content
		c.LastMessageTime = m.CreatedAt
		if m.ReceiverID == self && !m.IsRead {
			c.UnreadCount++
		}
	}
	s.mu.Unlock()

	out := make([]domain.WireConversation, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime.Time)
	})
	writeOK(w, out)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	peer, ok := pathUserID(r, "friendId")
	if !ok {
		writeError(w, http.StatusOK, "invalid user id")
		return
	}
	s.mu.Lock()
	out := []domain.WireMessage{}
	for _, m := range s.messages {
		if (m.SenderID == self && m.ReceiverID == peer) || (m.SenderID == peer && m.ReceiverID == self) {
			out = append(out, m.WireMessage)
		}
	}
	s.mu.Unlock()
	writeOK(w, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	sender, ok := pathUserID(r, "senderId")
	if !ok {
		writeError(w, http.StatusOK, "invalid user id")
		return
	}
	s.mu.Lock()
	for _, m := range s.messages {
		if m.SenderID == sender && m.ReceiverID == self {
			m.IsRead = true
		}
	}
	s.mu.Unlock()
	writeOK(w, "marked as read")
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request, self domain.UserID) {
	sender, ok := pathUserID(r, "senderId")
	if !ok {
		writeError(w, http.StatusOK, "invalid user id")
		return
	}
	s.mu.Lock()
	n := 0
	for _, m := range s.messages {
		if m.SenderID == sender && m.ReceiverID == self && !m.IsRead {
			n++
		}
	}
	s.mu.Unlock()
	writeOK(w, n)
}
