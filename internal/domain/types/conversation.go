package types

import "time"

// Conversation is the summary of the chat with one peer.
type Conversation struct {
	PeerID          UserID
	PeerName        string
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
	Online          bool
	// PendingServerCreation is set for conversations opened locally
	// that have not yet carried a message through the server.
	PendingServerCreation bool
}

// PresenceEvent reports a peer going online or offline.
type PresenceEvent struct {
	UserID UserID `json:"userId"`
	Online bool   `json:"isOnline"`
}

// ReadReceipt reports that ReceiverID has read messages sent by SenderID.
type ReadReceipt struct {
	SenderID   UserID `json:"senderId"`
	ReceiverID UserID `json:"receiverId"`
}

// TypingEvent is an inbound typing indicator.
type TypingEvent struct {
	UserID UserID `json:"userId"`
	Typing bool   `json:"isTyping"`
}

// TypingSignal is an outbound typing indicator.
type TypingSignal struct {
	ReceiverID UserID `json:"receiverId"`
	Typing     bool   `json:"isTyping"`
}
