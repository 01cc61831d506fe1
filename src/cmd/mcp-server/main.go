// Package main provides the MCP server entry point for creek.
// It exposes topic management, publishing and inspection of a running
// broker as MCP tools over stdio.
package main

import (
	"fmt"
	"os"

	"creek/src/config"
	"creek/src/httpapi"
	"creek/src/mcp"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	client := httpapi.NewClient(cfg.URL)
	server := mcp.NewServer(client, client)

	// stdout carries the protocol; diagnostics go to stderr.
	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
