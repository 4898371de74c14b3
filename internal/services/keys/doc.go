// Package keys manages the local RSA key pair used to unwrap message keys
// and the in-memory cache of contacts' public keys.
package keys
