// Package main provides the creek command: the broker server plus client
// subcommands for topics, publishing, consuming and monitoring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"creek/src/config"
	"creek/src/httpapi"
	"creek/src/logger"
)

var (
	// Application configuration
	appConfig *config.Config
	log       logger.Logger
	verbose   bool
	brokerURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "creek",
	Short: "creek - a partitioned pub/sub broker with leased group consumption",
	Long: `creek stores records in sharded topic logs and hands shards to consumer
groups under time-bound leases. Every group reads each record; within a group
each shard is read by one member at a time, in order.

Configuration comes from CREEK_* environment variables. The storage backend
is selected with CREEK_BACKEND (memory, postgres, redis or kafka).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if brokerURL != "" {
			appConfig.URL = brokerURL
		}
		log = logger.NewConsoleLogger(verbose)
		return nil
	},
}

// client connects to the configured broker over HTTP.
func client() *httpapi.Client {
	return httpapi.NewClient(appConfig.URL)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&brokerURL, "url", "", "Broker URL (default $CREEK_URL or http://localhost:8420)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(topCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
