package types

import "strconv"

// UserID identifies an account on the chat server.
type UserID int64

// String returns the decimal form of the identifier.
func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// ParseUserID parses a decimal user identifier.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(n), nil
}

// MessageID is the server-assigned identifier of a message.
type MessageID string

// String returns the string form of the identifier.
func (id MessageID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
