package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statsRegion string
	statsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show spend summary plus top savings and upsell opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		ctx := cmd.Context()

		summary, err := c.SummaryStats(ctx, statsRegion)
		if err != nil {
			return err
		}
		fmt.Printf("Region: %s\n", summary.Region)
		fmt.Printf("Customers: %d, avg spend ₹%s, total spend ₹%s\n",
			summary.TotalCustomers, summary.AvgMonthlySpend, summary.TotalCurrentSpend)
		fmt.Printf("Savings opportunities: %d (₹%s)\n", summary.Savings.Count, summary.Savings.Total)
		fmt.Printf("Upsell opportunities:  %d (₹%s)\n", summary.Upsell.Count, summary.Upsell.Total)

		savings, err := c.TopSavings(ctx, statsLimit, statsRegion)
		if err != nil {
			return err
		}
		if len(savings.Results) > 0 {
			fmt.Println("\nTop savings:")
			for _, row := range savings.Results {
				fmt.Printf("  customer %-6d %-10s → %-8s save ₹%s\n",
					row.CustomerID, row.Region, row.Prediction.Plan, row.Prediction.EstimatedSavings)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsRegion, "region", "", "filter by region")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 10, "rows per report")
}
