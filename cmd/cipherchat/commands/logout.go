package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and wipe local state, keeping encryption keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out. Encryption keys and recalled messages were kept.")
			return nil
		},
	}
}
