// Package identity manages the account-level end-to-end encryption setting.
//
// Enabling generates an RSA key pair, persists it through the key manager
// and registers the public half with the server; disabling withdraws the key
// and destroys the local material. The package also resolves and caches
// contacts' public keys, and enforces the passphrase policy used for sealed
// local stores.
package identity
