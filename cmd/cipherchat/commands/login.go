package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	var remember bool
	cmd := &cobra.Command{
		Use:   "login <user-id> <token>",
		Short: "Sign in for later commands (until reboot unless --remember)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePeer(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			if err := appCtx.Account.SignIn(id, args[1], remember); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the sign-in in the local store across reboots")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := appCtx.Account.Account(appCtx.Config.Server.API)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s on %s\n", acct.UserID, acct.APIBase)
			return nil
		},
	}
}
