package commands

import (
	"fmt"
	"os"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/protocol"
	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(identityFile); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to replace it", identityFile)
			}

			id, err := crypto.GenerateIdentity()
			if err != nil {
				return err
			}
			defer id.Wipe()

			if err := saveIdentity(identityFile, id, passphrase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity written to %s\nSession ID: %s\n",
				identityFile, protocol.SessionID(id.X25519.Public))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing identity")
	return cmd
}
