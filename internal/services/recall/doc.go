// Package recall keeps the plaintext of messages this client encrypted and
// sent, keyed by the server's message id.
//
// Entries expire a fixed time after they were stored and the cache holds
// at most a fixed number of them; the oldest-stored go first. The cache is
// meant to be consulted before any decryption attempt.
package recall
