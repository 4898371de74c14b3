// Package transport implements the persistent WebSocket connection to the
// chat server.
//
// A Channel moves through Disconnected, Connecting, Connected and Closing.
// While connected it sends a literal "ping" every heartbeat interval and
// expects a literal "pong" before the next one; a missed reply closes the
// connection with code 3000. Abnormal closes are retried with exponential
// backoff (base * 2^(n-1), capped) up to a fixed number of attempts, after
// which connection listeners receive ErrMaxReconnectAttemptsExceeded and
// only an explicit Connect starts again. Disconnect is the only way to
// cancel the heartbeat and a scheduled reconnect.
//
// Typed frames are JSON {"type": ..., "data": ...} and are dispatched to
// the handlers registered for their type, in registration order.
// Timers run on a benbjohnson/clock Clock so tests can drive them with a
// mock clock.
package transport
