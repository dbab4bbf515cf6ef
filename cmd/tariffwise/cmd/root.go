// Package cmd provides the CLI commands for tariffwise.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tariffwise/tariffwise/pkg/client"
)

var endpoint string

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "tariffwise",
	Short: "Operate a tariffd plan-recommendation daemon",
	Long: `tariffwise is the operator CLI for tariffd, the telecom plan
recommendation daemon.

It talks to a running daemon over HTTP: ask for recommendations, trigger
training runs, inspect the model registry, and seed synthetic usage data.

Examples:
  tariffwise recommend --data 3 --minutes 200 --sms 10 --region delhi --plan basic
  tariffwise recommend --customer 42
  tariffwise train
  tariffwise models
  tariffwise seed --customers 500`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func apiClient() *client.Client {
	return client.NewClient(endpoint)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", client.DefaultEndpoint, "tariffd API endpoint")

	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(mcpCmd)
}
