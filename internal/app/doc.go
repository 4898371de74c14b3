// Package app wires application dependencies for the CLI.
//
// It loads Config from YAML, builds the concrete stores, the REST client,
// the transport channel and the services from it, and exposes them via the
// Wire struct together with the Start, Close and Logout lifecycle.
package app
