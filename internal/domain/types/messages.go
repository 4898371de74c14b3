package types

import "time"

// Envelope is the hybrid-encrypted form of one message for one recipient.
// All three fields are standard base64; IV decodes to 12 bytes.
type Envelope struct {
	Ciphertext string `json:"encryptedContent"`
	WrappedKey string `json:"encryptedAESKey"`
	IV         string `json:"iv"`
}

// Complete reports whether every field of the envelope is present.
func (e Envelope) Complete() bool {
	return e.Ciphertext != "" && e.WrappedKey != "" && e.IV != ""
}

// Message is a chat message as shown in a conversation.
type Message struct {
	ID         MessageID
	SenderID   UserID
	ReceiverID UserID
	Content    string
	Kind       string
	CreatedAt  time.Time
	Read       bool

	// Encrypted is set when the message travelled as an envelope.
	Encrypted bool
	Envelope  *Envelope
	// Undecryptable marks messages whose content is a placeholder.
	Undecryptable bool
	DecryptError  string
}

// Peer returns the other party of the message relative to self.
func (m Message) Peer(self UserID) UserID {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// RecallEntry is one cached plaintext of a self-authored encrypted message.
// Times are Unix milliseconds.
type RecallEntry struct {
	Content    string `json:"content"`
	ReceiverID UserID `json:"receiverId"`
	Timestamp  int64  `json:"timestamp"`
	StoredAt   int64  `json:"storedAt"`
	Seq        uint64 `json:"seq,omitempty"`
}

// RecallStats describes the recall cache contents.
type RecallStats struct {
	Total        int       `json:"total"`
	Peers        int       `json:"peers"`
	Oldest       time.Time `json:"oldest"`
	Newest       time.Time `json:"newest"`
	ApproxBytes  int       `json:"approxBytes"`
	Capacity     int       `json:"capacity"`
	RetentionAge string    `json:"retention"`
}

// RecalledMessage pairs a recall entry with its message id.
type RecalledMessage struct {
	ID MessageID
	RecallEntry
}
