package types

import "encoding/json"

// FrameType names the kind of a typed frame on the persistent connection.
type FrameType string

const (
	FrameNewMessage       FrameType = "NEW_MESSAGE"
	FrameEncryptedMessage FrameType = "ENCRYPTED_MESSAGE"
	FrameUserOnline       FrameType = "USER_ONLINE"
	FrameUserOffline      FrameType = "USER_OFFLINE"
	FrameMessageRead      FrameType = "MESSAGE_READ"
	FrameTyping           FrameType = "TYPING"
	FrameFriendRequest    FrameType = "FRIEND_REQUEST"
	FrameFriendResponse   FrameType = "FRIEND_RESPONSE"
)

// String returns the wire value of the frame type.
func (t FrameType) String() string { return string(t) }

// Frame is the JSON envelope of every typed message on the connection.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame payload into out.
func (f Frame) Decode(out any) error {
	if len(f.Data) == 0 {
		return json.Unmarshal([]byte("null"), out)
	}
	return json.Unmarshal(f.Data, out)
}
