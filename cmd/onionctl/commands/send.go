package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opd-ai/onionrelay"
	"github.com/spf13/cobra"
)

// send <session-id> <message>: store a message on the recipient's swarm.
func sendCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "send <session-id> <message>",
		Short: "Send a text message to a Session ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(identityFile, passphrase)
			if err != nil {
				return err
			}
			defer id.Wipe()

			opts := onionrelay.OptionsFromConfig(cfg)
			opts.Identity = id
			client, err := onionrelay.New(opts)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), requestBudget())
			defer cancel()

			hashes, err := client.SendMessage(ctx, onionrelay.Message{
				Recipient: args[0],
				Body:      []byte(args[1]),
				TTL:       ttl,
			})
			if err != nil {
				return err
			}

			nodes := make([]string, 0, len(hashes))
			for node := range hashes {
				nodes = append(nodes, node)
			}
			sort.Strings(nodes)
			out := cmd.OutOrStdout()
			for _, node := range nodes {
				fmt.Fprintf(out, "%s  %s\n", node[:16], hashes[node])
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", onionrelay.DefaultMessageTTL, "how long the swarm keeps the message")
	return cmd
}

// requestBudget bounds a whole command: every attempt of every request.
func requestBudget() time.Duration {
	per := time.Duration(cfg.Network.RequestTimeout) * time.Millisecond
	return per * time.Duration(cfg.Network.MaxRequestAttempts+1) * 2
}
