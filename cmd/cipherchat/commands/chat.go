package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
	"cipherchat/internal/services/conversation"
)

// chat <peer>: interactive conversation. Lines starting with "/" are
// commands; anything else is sent. Input is read from the command's stdin.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Chat interactively with a peer (/encrypt toggles encryption, /typing notifies, /quit exits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			out := cmd.OutOrStdout()

			self, err := appCtx.Account.UserID()
			if err != nil {
				return err
			}
			if err := appCtx.Start(ctx); err != nil {
				return err
			}
			// The server's list makes an existing conversation known, so
			// opening it fetches the history and marks it read.
			if _, err := appCtx.Chat.LoadConversations(ctx); err != nil {
				return err
			}
			if n, err := appCtx.API.UnreadCount(ctx, peer); err == nil && n > 0 {
				fmt.Fprintf(out, "* %d unread from %s\n", n, peer)
			}
			if _, err := appCtx.Chat.OpenConversation(ctx, peer); err != nil {
				return err
			}
			defer appCtx.Chat.CloseConversation()

			for _, m := range appCtx.Chat.Messages() {
				fmt.Fprintln(out, formatEvent(self, conversation.Event{Kind: conversation.EventMessage, Message: m}))
			}
			appCtx.Chat.OnEvent(func(ev conversation.Event) {
				if ev.Peer != peer && ev.Kind != conversation.EventFriendRequest {
					return
				}
				// Our own sends are echoed by the prompt loop below.
				if ev.Kind == conversation.EventMessage && ev.Message.SenderID == self {
					return
				}
				if line := formatEvent(self, ev); line != "" {
					fmt.Fprintln(out, line)
				}
			})

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					quit, err := chatLine(cmd, self, peer, strings.TrimSpace(line))
					if err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					}
					if quit {
						return nil
					}
				}
			}
		},
	}
}

func chatLine(cmd *cobra.Command, self, peer domain.UserID, line string) (quit bool, err error) {
	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/typing":
		if !appCtx.Chat.SendTyping(peer, true) {
			return false, errors.New("not connected")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "* told %s you are typing\n", peer)
		return false, nil
	case "/encrypt":
		on, err := appCtx.Chat.ToggleEncryption(peer)
		if errors.Is(err, domain.ErrEncryptionNotEnabled) {
			return false, fmt.Errorf("%w (run `cipherchat keys enable` first)", err)
		}
		if err != nil {
			return false, err
		}
		state := "off"
		if on {
			state = "on"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "* encryption %s\n", state)
		return false, nil
	}

	m, err := appCtx.Chat.SendMessage(cmd.Context(), peer, line)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatEvent(self, conversation.Event{Kind: conversation.EventMessage, Message: m}))
	return false, nil
}
