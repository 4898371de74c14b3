package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
	"cipherchat/internal/services/conversation"
)

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print inbound messages and events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			out := cmd.OutOrStdout()

			self, err := appCtx.Account.UserID()
			if err != nil {
				return err
			}
			appCtx.Transport.OnConnectionChange(func(ev domain.ConnectionEvent) {
				if ev.Err != nil {
					fmt.Fprintf(out, "* connection %s: %v\n", ev.State, ev.Err)
					return
				}
				fmt.Fprintf(out, "* connection %s\n", ev.State)
			})
			appCtx.Chat.OnEvent(func(ev conversation.Event) {
				if line := formatEvent(self, ev); line != "" {
					fmt.Fprintln(out, line)
				}
			})
			if err := appCtx.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}

// formatEvent renders a session event as one line, or "" to skip it.
func formatEvent(self domain.UserID, ev conversation.Event) string {
	switch ev.Kind {
	case conversation.EventMessage:
		m := ev.Message
		lock := " "
		if m.Encrypted {
			lock = "*"
		}
		from := m.SenderID.String()
		if m.SenderID == self {
			from = "me -> " + m.ReceiverID.String()
		}
		return fmt.Sprintf("[%s]%s%s: %s", m.CreatedAt.Local().Format(time.TimeOnly), lock, from, m.Content)
	case conversation.EventPresence:
		state := "offline"
		if ev.Online {
			state = "online"
		}
		return fmt.Sprintf("* %s is %s", ev.Peer, state)
	case conversation.EventRead:
		return fmt.Sprintf("* %s read your messages", ev.Receipt.ReceiverID)
	case conversation.EventTyping:
		if ev.Typing {
			return fmt.Sprintf("* %s is typing", ev.Peer)
		}
		return ""
	case conversation.EventFriendRequest, conversation.EventFriendResponse:
		return fmt.Sprintf("* %s: %s", ev.Kind, string(ev.Data))
	}
	return ""
}
