package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"creek/src/producer"
)

var publishCmd = &cobra.Command{
	Use:   "publish <topic> [value...]",
	Short: "Publish records to a topic",
	Long: `Publishes each value as one record. Without values, every line of stdin
is published. Values that are not valid JSON are published as JSON strings.

Example:
  creek publish orders '{"id": 1}' --shard-key customer-7
  tail -f events.log | creek publish events`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		shardKey, _ := cmd.Flags().GetString("shard-key")

		p := producer.New[json.RawMessage](client(), args[0], nil)
		message := func(v string) producer.Message[json.RawMessage] {
			msg := producer.Message[json.RawMessage]{Value: asJSON(v)}
			if key != "" {
				msg.Key = key
			}
			if shardKey != "" {
				msg.ShardKey = shardKey
			}
			return msg
		}

		if len(args) > 1 {
			msgs := make([]producer.Message[json.RawMessage], 0, len(args)-1)
			for _, v := range args[1:] {
				msgs = append(msgs, message(v))
			}
			if err := p.Write(cmd.Context(), msgs...); err != nil {
				return err
			}
			log.Info("[Publish] %d records to %s", len(msgs), args[0])
			return nil
		}

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		n := 0
		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			if err := p.Write(cmd.Context(), message(scanner.Text())); err != nil {
				return fmt.Errorf("record %d: %w", n+1, err)
			}
			n++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		log.Info("[Publish] %d records to %s", n, args[0])
		return nil
	},
}

func asJSON(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	quoted, _ := json.Marshal(v)
	return quoted
}

func init() {
	publishCmd.Flags().StringP("key", "k", "", "Record key")
	publishCmd.Flags().StringP("shard-key", "s", "", "Routing key; records with the same key share a shard")
}
