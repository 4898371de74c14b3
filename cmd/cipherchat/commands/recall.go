package commands

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func recallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Inspect the local copies of encrypted messages you sent",
	}

	list := &cobra.Command{
		Use:   "list <peer>",
		Short: "List recalled messages sent to a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			msgs := appCtx.Recall.ForPeer(peer)
			sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
			for _, m := range msgs {
				at := time.UnixMilli(m.Timestamp).Local().Format(time.DateTime)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %s\n", at, m.ID, m.Content)
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recalled messages")
			}
			return nil
		},
	}

	var purgePeer string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete recalled messages (all, or for --peer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if purgePeer == "" {
				if err := appCtx.Recall.PurgeAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "recall cache cleared")
				return nil
			}
			peer, err := parsePeer(purgePeer)
			if err != nil {
				return err
			}
			if err := appCtx.Recall.PurgeForPeer(peer); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recalled messages for %s removed\n", peer)
			return nil
		},
	}
	purge.Flags().StringVar(&purgePeer, "peer", "", "only purge messages sent to this peer")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarise the recall cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			st := appCtx.Recall.Stats()
			fmt.Fprintf(out, "Entries:   %d / %d\n", st.Total, st.Capacity)
			fmt.Fprintf(out, "Peers:     %d\n", st.Peers)
			fmt.Fprintf(out, "Retention: %s\n", st.RetentionAge)
			if st.Total > 0 {
				fmt.Fprintf(out, "Oldest:    %s\n", st.Oldest.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Newest:    %s\n", st.Newest.Local().Format(time.DateTime))
			}
			return nil
		},
	}

	var merge bool
	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the recall cache to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := appCtx.Recall.Export()
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], b, 0o600)
		},
	}
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a recall cache exported on another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return appCtx.Recall.Import(b, merge)
		},
	}
	imp.Flags().BoolVar(&merge, "merge", true, "merge with existing entries instead of replacing them")

	cmd.AddCommand(list, purge, stats, export, imp)
	return cmd
}
