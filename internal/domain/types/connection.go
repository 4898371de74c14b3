package types

// ConnectionState is the lifecycle state of the persistent connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closing
)

// String returns the lower-case name of the state.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// ConnectionEvent is delivered to connection listeners on every state change.
// Err carries the reason for an abnormal transition, if any.
type ConnectionEvent struct {
	State   ConnectionState
	Attempt int
	Err     error
}
