package domain

import (
	"errors"
	"fmt"
)

var (
	ErrKeyGeneration                = errors.New("key generation failed")
	ErrKeyImport                    = errors.New("key import failed")
	ErrKeyStorageCorrupted          = errors.New("key storage corrupted")
	ErrEncryption                   = errors.New("encryption failed")
	ErrDecryption                   = errors.New("decryption failed")
	ErrConnectionTimeout            = errors.New("connection timed out")
	ErrConnectionClosed             = errors.New("connection closed")
	ErrMaxReconnectAttemptsExceeded = errors.New("max reconnect attempts exceeded")
	ErrServerRequest                = errors.New("server request failed")

	// ErrEncryptionNotEnabled is returned by operations that need the
	// account-level encryption setting turned on.
	ErrEncryptionNotEnabled = errors.New("end-to-end encryption is not enabled")
	// ErrNoCurrentUser is returned when no signed-in account can be resolved.
	ErrNoCurrentUser = errors.New("no current user")
)

// DecryptionError describes why one message could not be decrypted.
// It matches ErrDecryption under errors.Is.
type DecryptionError struct {
	Cause string
	Err   error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Cause, e.Err)
	}
	return "decryption failed: " + e.Cause
}

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

func (e *DecryptionError) Unwrap() error { return e.Err }

// ServerRequestError is a REST response whose envelope code is not "200".
type ServerRequestError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
}

func (e *ServerRequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	return fmt.Sprintf("server %s %s: code %s: %s", e.Method, e.Path, e.Code, msg)
}

func (e *ServerRequestError) Is(target error) bool { return target == ErrServerRequest }
