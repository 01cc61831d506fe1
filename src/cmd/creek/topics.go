package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"creek/src/contracts"
	"creek/src/tui"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Create and list topics",
}

var topicsCreateCmd = &cobra.Command{
	Use:   "create <topic>",
	Short: "Create a topic with a fixed shard count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shards, _ := cmd.Flags().GetInt("shards")
		req := contracts.CreateTopicRequest{Topic: args[0], Shards: shards}
		if err := client().CreateTopic(cmd.Context(), req); err != nil {
			return err
		}
		fmt.Printf("topic %s ready with %d shards\n", args[0], shards)
		return nil
	},
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := client().Topics(cmd.Context())
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			fmt.Println("no topics")
			return nil
		}
		t := table.New().Border(lipgloss.NormalBorder()).Headers("TOPIC", "SHARDS")
		for _, topic := range topics {
			t.Row(topic.Topic, fmt.Sprint(topic.Shards))
		}
		fmt.Println(t.Render())
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print shard lengths, cursors, lag and leases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client().Stats(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("TOPIC", "SHARD", "LENGTH", "GROUP", "COMMITTED", "LAG", "HOLDER", "LEASE")
		for _, row := range tui.Rows(stats) {
			t.Row(row...)
		}
		fmt.Println(t.Render())
		fmt.Printf("%d active subscriptions\n", stats.Subscriptions)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Truncate every topic and reset all cursors and leases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("clear drops every record; pass --yes to confirm")
		}
		if err := client().Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	topicsCmd.AddCommand(topicsCreateCmd)
	topicsCmd.AddCommand(topicsListCmd)

	topicsCreateCmd.Flags().IntP("shards", "s", 1, "Number of shards")
	statsCmd.Flags().Bool("json", false, "Print raw JSON")
	clearCmd.Flags().Bool("yes", false, "Confirm clearing all data")
}
