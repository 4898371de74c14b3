// Package devserver is an in-memory stand-in for the chat backend.
//
// It serves the REST endpoints the client uses and the /chat WebSocket,
// keeping users, public keys and messages in memory. The bearer token (and
// the WebSocket ?token= parameter) is simply the decimal user id. It exists
// for local development and for end-to-end tests; nothing is persisted.
//
// Push behaviour:
//
//   - NEW_MESSAGE goes to every session of the receiver and the sender.
//   - USER_ONLINE is broadcast when a user's first session opens and
//     USER_OFFLINE when the last one closes.
//   - TYPING {receiverId, isTyping} is forwarded as {userId, isTyping}.
//   - MESSAGE_READ is forwarded to the original sender.
//   - The text frame "ping" is answered with "pong".
package devserver
