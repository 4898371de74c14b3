package domain

import (
	interfaces "cipherchat/internal/domain/interfaces"
	types "cipherchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	MessageID          = types.MessageID
	Fingerprint        = types.Fingerprint
	PublicKey          = types.PublicKey
	PrivateKey         = types.PrivateKey
	KeyPair            = types.KeyPair
	EncryptionSettings = types.EncryptionSettings
	EncryptionStats    = types.EncryptionStats
	Envelope           = types.Envelope
	Message            = types.Message
	RecallEntry        = types.RecallEntry
	RecallStats        = types.RecallStats
	RecalledMessage    = types.RecalledMessage
	Conversation       = types.Conversation
	PresenceEvent      = types.PresenceEvent
	ReadReceipt        = types.ReadReceipt
	TypingEvent        = types.TypingEvent
	TypingSignal       = types.TypingSignal
	ConnectionState    = types.ConnectionState
	ConnectionEvent    = types.ConnectionEvent
	FrameType          = types.FrameType
	Frame              = types.Frame
	WireTime           = types.WireTime
	WireMessage        = types.WireMessage
	WireConversation   = types.WireConversation
	Account            = types.Account
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KVStore            = interfaces.KVStore
	KeyManager         = interfaces.KeyManager
	MessageCipher      = interfaces.MessageCipher
	PlaintextCache     = interfaces.PlaintextCache
	EncryptionService  = interfaces.EncryptionService
	CurrentUser        = interfaces.CurrentUser
	KeyDirectory       = interfaces.KeyDirectory
	Delivery           = interfaces.Delivery
	History            = interfaces.History
	Subscription       = interfaces.Subscription
	FrameHandler       = interfaces.FrameHandler
	ConnectionListener = interfaces.ConnectionListener
	Transport          = interfaces.Transport
)

// Connection states.
const (
	Disconnected = types.Disconnected
	Connecting   = types.Connecting
	Connected    = types.Connected
	Closing      = types.Closing
)

// Frame types understood by the chat server.
const (
	FrameNewMessage       = types.FrameNewMessage
	FrameEncryptedMessage = types.FrameEncryptedMessage
	FrameUserOnline       = types.FrameUserOnline
	FrameUserOffline      = types.FrameUserOffline
	FrameMessageRead      = types.FrameMessageRead
	FrameTyping           = types.FrameTyping
	FrameFriendRequest    = types.FrameFriendRequest
	FrameFriendResponse   = types.FrameFriendResponse
)

// Persisted key names.
const (
	KeyPrivateKey     = "e2ee_private_key"
	KeyPublicKey      = "e2ee_public_key"
	KeyEncryptionOn   = "e2ee_enabled"
	KeyRecallMessages = "e2ee_original_messages"
	KeyUserID         = "user_id"
	KeyToken          = "token"
)

// PreservedKeys are kept when local storage is wiped at logout.
var PreservedKeys = []string{KeyPrivateKey, KeyPublicKey, KeyEncryptionOn, KeyRecallMessages}

// NewWireMessage converts m into its wire form.
func NewWireMessage(m Message) WireMessage { return types.NewWireMessage(m) }

// ParseUserID parses a decimal user identifier.
func ParseUserID(s string) (UserID, error) { return types.ParseUserID(s) }
