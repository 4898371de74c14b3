package interfaces

import (
	"context"

	domaintypes "cipherchat/internal/domain/types"
)

// KeyDirectory is the server's public key registry.
type KeyDirectory interface {
	PublishSettings(ctx context.Context, settings domaintypes.EncryptionSettings) error
	FetchPublicKey(ctx context.Context, user domaintypes.UserID) (string, error)
	EncryptionStatus(ctx context.Context, a, b domaintypes.UserID) (bool, error)
}

// Delivery sends messages through the server.
type Delivery interface {
	SendPlain(ctx context.Context, to domaintypes.UserID, content string) (domaintypes.Message, error)
	SendEncrypted(ctx context.Context, to domaintypes.UserID, env domaintypes.Envelope) (domaintypes.Message, error)
}

// History reads conversation state from the server.
type History interface {
	Conversations(ctx context.Context) ([]domaintypes.Conversation, error)
	Messages(ctx context.Context, peer domaintypes.UserID) ([]domaintypes.Message, error)
	MarkRead(ctx context.Context, peer domaintypes.UserID) error
}

// Subscription is an opaque handle returned by a registration.
type Subscription interface {
	Unsubscribe()
}

// FrameHandler handles one inbound typed frame.
type FrameHandler func(frame domaintypes.Frame) error

// ConnectionListener observes connection state changes.
type ConnectionListener func(ev domaintypes.ConnectionEvent)

// Transport is the persistent bidirectional connection.
type Transport interface {
	Connect(ctx context.Context, credential string) error
	Disconnect()
	Send(t domaintypes.FrameType, payload any) bool
	Subscribe(t domaintypes.FrameType, h FrameHandler) Subscription
	OnConnectionChange(l ConnectionListener) Subscription
	State() domaintypes.ConnectionState
}
