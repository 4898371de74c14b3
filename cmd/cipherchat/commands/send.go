package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// send <peer> <message>: deliver one message, encrypted with --encrypt.
func sendCmd() *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Init(cmd.Context()); err != nil {
				return err
			}
			if encrypt {
				if err := appCtx.Chat.SetEncryption(peer, true); err != nil {
					return fmt.Errorf("%w (run `cipherchat keys enable` first)", err)
				}
			}
			m, err := appCtx.Chat.SendMessage(cmd.Context(), peer, args[1])
			if err != nil {
				return err
			}
			mode := "plain"
			if m.Encrypted {
				mode = "encrypted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s)\n", m.ID, mode)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&encrypt, "encrypt", "e", false, "encrypt the message end-to-end")
	return cmd
}
