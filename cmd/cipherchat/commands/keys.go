package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage end-to-end encryption for this account",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			err := appCtx.Init(cmd.Context())
			if errors.Is(err, domain.ErrKeyStorageCorrupted) && replacesKeys(cmd) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; the stored key pair will be replaced\n", err)
				return nil
			}
			return err
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Generate a key pair and register the public key",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := appCtx.Identity.Enable(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Encryption enabled.\nFingerprint: %s\n", appCtx.Identity.Fingerprint())
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Withdraw the public key and destroy local key material",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := appCtx.Identity.Disable(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Encryption disabled.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status [peer]",
			Short: "Print the local encryption state, and whether a peer can be messaged encrypted",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				st := appCtx.Identity.Stats()
				fmt.Fprintf(out, "Enabled:     %t\n", st.Enabled)
				fmt.Fprintf(out, "Key pair:    %t\n", st.Available)
				if st.Fingerprint != "" {
					fmt.Fprintf(out, "Fingerprint: %s\n", st.Fingerprint)
				}
				fmt.Fprintf(out, "Contacts:    %d cached key(s)\n", st.ContactKeys)
				if len(args) == 0 {
					return nil
				}
				peer, err := parsePeer(args[0])
				if err != nil {
					return err
				}
				ok, err := appCtx.Identity.CanEncryptWith(cmd.Context(), peer)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Encrypt to %s: %t\n", peer, ok)
				return nil
			},
		},
	)
	return cmd
}

// replacesKeys reports whether cmd overwrites or destroys the stored key
// pair, so unreadable key storage must not stop it.
func replacesKeys(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "enable", "disable":
		return true
	}
	return false
}
