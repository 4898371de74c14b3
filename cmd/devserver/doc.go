// Package main runs the in-memory chat backend used during development and
// by the end-to-end tests. It speaks the same REST and WebSocket protocol as
// the production server, with the bearer token being the decimal user id.
//
// HTTP API
//
//	POST /e2ee/settings {publicKey, e2eeEnabled}
//	    Register or withdraw the caller's public key.
//
//	GET /e2ee/public-key/{userId}
//	    Return {publicKey, e2eeEnabled, username} for {userId}.
//
//	GET /e2ee/status/{a}/{b}
//	    Return {user1E2EEEnabled, user2E2EEEnabled, bothEnabled}.
//
//	POST /e2ee/send-encrypted {receiverId, encryptedContent, encryptedAESKey, iv}
//	    Store an encrypted message and push it to both parties.
//
//	POST /messages/send {receiverId, content, messageType}
//	    Store a plaintext message and push it to both parties.
//
//	GET /messages/conversations
//	GET /messages/conversation/{friendId}
//	POST /messages/mark-read/{senderId}
//	GET /messages/unread-count/{senderId}
//	    Conversation summaries, history and read state.
//
//	GET /chat?token={userId}
//	    WebSocket upgrade. See package devserver for the pushed frames.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Every response is a {code, message, data} envelope; code "200" is success.
//   - A debug-level access log records method, path, remote, status, bytes,
//     duration and request id.
//   - The default listen address is :8080.
//
// The server never sees plaintext of encrypted messages or private keys.
package main
