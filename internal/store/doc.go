// Package store implements the local key-value storage used for key
// material, the recall cache and the signed-in account.
//
// Backends
//
//   - FileKV     one JSON file, replaced atomically on every write and
//     optionally sealed with a passphrase (scrypt + XChaCha20-Poly1305)
//   - SQLiteKV   a single "kv" table in a SQLite database
//   - MemoryKV   in-process map for tests and session-scoped values
//
// ClearPreserving implements the logout wipe that keeps encryption keys
// and the recall cache.
package store
