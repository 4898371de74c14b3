// Package message implements per-message hybrid encryption.
//
// Encrypt produces an Envelope of three base64 fields (ciphertext, wrapped
// key, 12-byte IV) that travel together. Decrypt reports every failure as
// a *domain.DecryptionError naming the cause, so callers can show a
// placeholder for one message and carry on with the rest.
package message
