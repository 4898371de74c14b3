// Package conversation is the chat session: it decides per peer whether to
// encrypt outbound messages, resolves inbound encrypted messages through the
// recall cache and the message cipher, and keeps the ordered conversation
// summaries and the open conversation's messages.
//
// Inbound frames arrive on the transport's reader goroutine. The session
// guards its state with one mutex and never holds it while calling the
// network, the cipher, or observers.
package conversation
