package commands

import (
	"fmt"
	"time"

	"github.com/opd-ai/onionrelay/protocol"
	"github.com/spf13/cobra"
)

// seal <session-id> <message>: print the store payload without sending it.
func sealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal <session-id> <message>",
		Short: "Seal a message for a Session ID and print the base64 payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(identityFile, passphrase)
			if err != nil {
				return err
			}
			defer id.Wipe()

			data, err := protocol.EncodeMessage([]byte(args[1]), id, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		},
	}
}
