package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// WireTimeLayout is the server's timestamp format.
const WireTimeLayout = "2006-01-02 15:04:05"

// WireTime decodes the server timestamp formats: the local-time layout,
// RFC 3339, or Unix milliseconds.
type WireTime struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (t *WireTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if s[0] != '"' {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		t.Time = time.UnixMilli(ms)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	var err error
	for _, layout := range []string{WireTimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		var p time.Time
		if p, err = time.ParseInLocation(layout, str, time.Local); err == nil {
			t.Time = p
			return nil
		}
	}
	return err
}

// MarshalJSON implements json.Marshaler.
func (t WireTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Local().Format(WireTimeLayout))
}

// WireMessage is the server's message representation, used both in REST
// responses and in NEW_MESSAGE / ENCRYPTED_MESSAGE frame payloads.
type WireMessage struct {
	ID               json.Number `json:"id"`
	SenderID         UserID      `json:"senderId"`
	ReceiverID       UserID      `json:"receiverId"`
	Content          string      `json:"content"`
	EncryptedContent string      `json:"encryptedContent,omitempty"`
	MessageType      string      `json:"messageType,omitempty"`
	IsRead           bool        `json:"isRead"`
	EncryptedAESKey  string      `json:"encryptedAESKey,omitempty"`
	IV               string      `json:"iv,omitempty"`
	IsEncrypted      bool        `json:"isEncrypted"`
	CreatedAt        WireTime    `json:"createdAt"`
}

// Message converts the wire form into a Message. Encrypted messages carry
// their envelope and an empty Content.
func (w WireMessage) Message() Message {
	m := Message{
		ID:         MessageID(w.ID.String()),
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		Content:    w.Content,
		Kind:       w.MessageType,
		CreatedAt:  w.CreatedAt.Time,
		Read:       w.IsRead,
	}
	if w.IsEncrypted || w.EncryptedAESKey != "" {
		ct := w.Content
		if ct == "" {
			ct = w.EncryptedContent
		}
		m.Encrypted = true
		m.Content = ""
		m.Envelope = &Envelope{Ciphertext: ct, WrappedKey: w.EncryptedAESKey, IV: w.IV}
	}
	return m
}

// NewWireMessage converts m into its wire form.
func NewWireMessage(m Message) WireMessage {
	w := WireMessage{
		ID:          json.Number(m.ID),
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: m.Kind,
		IsRead:      m.Read,
		CreatedAt:   WireTime{m.CreatedAt},
	}
	if m.Envelope != nil {
		w.IsEncrypted = true
		w.Content = m.Envelope.Ciphertext
		w.EncryptedAESKey = m.Envelope.WrappedKey
		w.IV = m.Envelope.IV
	}
	return w
}

// WireConversation is the server's conversation summary.
type WireConversation struct {
	FriendID        UserID   `json:"friendId"`
	FriendUsername  string   `json:"friendUsername"`
	LastMessage     string   `json:"lastMessage"`
	UnreadCount     int      `json:"unreadCount"`
	IsOnline        bool     `json:"isOnline"`
	LastMessageTime WireTime `json:"lastMessageTime"`
}

// Conversation converts the wire summary into a confirmed Conversation.
func (w WireConversation) Conversation() Conversation {
	return Conversation{
		PeerID:          w.FriendID,
		PeerName:        w.FriendUsername,
		LastMessage:     w.LastMessage,
		LastMessageTime: w.LastMessageTime.Time,
		UnreadCount:     w.UnreadCount,
		Online:          w.IsOnline,
	}
}

// Account identifies the signed-in user on a server.
type Account struct {
	APIBase string `json:"api_base"`
	UserID  UserID `json:"user_id"`
	Token   string `json:"-"`
}
