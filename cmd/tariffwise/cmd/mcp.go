package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tariffwise/tariffwise/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Model Context Protocol adapter on stdio",
	Long: `mcp exposes the daemon's recommendation and registry surfaces as MCP
tools and resources, so LLM agents can query plans through a standard
protocol. It proxies to the daemon at --endpoint and serves on stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcp.NewServer(endpoint).Serve()
	},
}
