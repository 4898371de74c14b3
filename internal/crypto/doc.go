// Package crypto exposes the primitives used by the messaging layer.
//
// Contents
//
//   - Provider, the capability interface for key generation, key wrapping
//     and authenticated payload encryption
//   - RSAProvider, RSA-OAEP/SHA-256 wrapping with AES-256-GCM payloads;
//     public keys encode as SPKI DER, private keys as PKCS#8 DER
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Base64 helpers for wire encoding (B64, UnB64)
//
// # Notes
//
// Key handles are opaque (domain.PublicKey, domain.PrivateKey) so another
// provider can be substituted without touching the services that use it.
package crypto
