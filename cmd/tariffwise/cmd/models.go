package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List published model versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().Models(cmd.Context())
		if err != nil {
			return err
		}
		if len(resp.Versions) == 0 {
			fmt.Println("No models published yet.")
			return nil
		}
		for _, v := range resp.Versions {
			marker := " "
			if v == resp.Latest {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, v)
		}
		if resp.Loaded != "" {
			fmt.Printf("\nLoaded by daemon: %s\n", resp.Loaded)
		}
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Trigger an on-demand training run",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().Train(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Published model version %s\n", resp.Version)
		return nil
	},
}
