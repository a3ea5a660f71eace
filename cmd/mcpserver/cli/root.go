// Package cli implements the mcpserver command-line interface using Cobra,
// adapted from the teacher's sibling example (Tutu-Engine-tutuengine's
// internal/cli.Execute pattern).
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mcpserver",
	Short:         "mcpserver — MCP Streamable HTTP transport runtime",
	Long:          `mcpserver runs the Model Context Protocol Streamable HTTP transport: session lifecycle, durable event log, SSE fan-out and JSON-RPC dispatch behind a single /mcp endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}
