// Package account resolves the signed-in user.
//
// Every component that needs the caller's own user id or bearer token goes
// through a single Resolver instead of reading storage directly.
package account
