// Package commands defines the cipherchat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - login          Sign in for this machine session, or across reboots with --remember
//   - whoami         Print the signed-in account
//   - keys enable    Generate a key pair and register the public key
//   - keys disable   Withdraw the public key and destroy local key material
//   - keys status    Print the local encryption state, optionally against a peer
//   - send           Send one message to a peer
//   - listen         Print inbound messages and events until interrupted
//   - chat           Interactive conversation with one peer
//   - recall         List, inspect or purge cached plaintexts of sent messages
//   - logout         Disconnect and wipe local state except encryption keys
//
// # Implementation
//
// The root command loads the YAML config, applies flag overrides and builds
// the app.Wire dependency graph before any subcommand runs. The graph is
// closed after the subcommand returns, whether or not it failed. Commands
// write to the command's output streams and chat reads the command's input,
// so the whole tree can be driven in-process.
package commands
