package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"creek/src/dispatcher"
	"creek/src/sanitize"
)

var consumeCmd = &cobra.Command{
	Use:   "consume <topic>",
	Short: "Print records of a topic as they arrive",
	Long: `Runs a dispatcher on the topic and prints one line per record as
"shard/offset value". With --group, shards are shared with other consumers
of the same group and progress is committed; without it every shard is read
from the start by this consumer alone.

Example:
  creek consume orders --group billing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		limit, _ := cmd.Flags().GetInt("limit")
		showKeys, _ := cmd.Flags().GetBool("keys")

		cfg := dispatcher.Config{
			Topic:        args[0],
			Group:        group,
			Limit:        limit,
			AutoCommit:   appConfig.AutoCommit,
			PollInterval: appConfig.PollInterval,
			IdleTimeout:  appConfig.IdleTimeout,
		}

		var out sync.Mutex
		factory := func(shard int) (dispatcher.Receiver, error) {
			return dispatcher.ReceiverFunc(func(ctx context.Context, b *dispatcher.Batch) error {
				out.Lock()
				defer out.Unlock()
				for i, r := range b.Records {
					value := sanitize.Printable(string(r.Value))
					if showKeys {
						fmt.Fprintf(os.Stdout, "%d/%d %s %s\n", b.Shard, b.Offset+int64(i), sanitize.Printable(string(r.Key)), value)
					} else {
						fmt.Fprintf(os.Stdout, "%d/%d %s\n", b.Shard, b.Offset+int64(i), value)
					}
				}
				return nil
			}), nil
		}

		d := dispatcher.New(client(), cfg, factory, dispatcher.WithLogger(log))
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Debug("[Consume] %s", d.Client())
		return d.Run(ctx)
	},
}

func init() {
	consumeCmd.Flags().StringP("group", "g", "", "Consumer group")
	consumeCmd.Flags().Int("limit", 0, "Max records per shard batch (default: broker decides)")
	consumeCmd.Flags().Bool("keys", false, "Print record keys")
}
