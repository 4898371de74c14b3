// Package api is the HTTP client for the chat server's REST surface.
//
// Every response is wrapped in an envelope of the form
//
//	{"code": "200", "message": "...", "data": ...}
//
// and any code other than "200" (or a non-2xx status) is returned as a
// *domain.ServerRequestError. Requests carry a bearer token from the
// configured domain.CurrentUser and an X-Request-ID header.
//
// Endpoints used:
//   - POST /e2ee/settings                 publish or withdraw our public key
//   - GET  /e2ee/public-key/{userId}      fetch a peer's public key
//   - GET  /e2ee/status/{a}/{b}           can a and b encrypt to each other
//   - POST /e2ee/send-encrypted           deliver an encrypted envelope
//   - POST /messages/send                 deliver a plaintext message
//   - GET  /messages/conversations        conversation summaries
//   - GET  /messages/conversation/{id}    history with one peer
//   - POST /messages/mark-read/{id}       mark a peer's messages read
//   - GET  /messages/unread-count/{id}    unread count for one peer
//
// There is no automatic retry.
package api
