package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tariffwise/tariffwise/pkg/api"
	"github.com/tariffwise/tariffwise/pkg/recommend"
)

var (
	recommendCustomer int64
	recommendData     float64
	recommendMinutes  float64
	recommendSMS      float64
	recommendRegion   string
	recommendPlan     string
	recommendSpend    float64
	recommendJSON     bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a plan for a customer or a raw usage profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		ctx := cmd.Context()

		var pred recommend.Prediction
		var err error
		if recommendCustomer > 0 {
			pred, err = c.RecommendCustomer(ctx, recommendCustomer)
		} else {
			pred, err = c.Recommend(ctx, api.RecommendRequest{
				AvgDataGB:   recommendData,
				AvgMinutes:  recommendMinutes,
				AvgSMS:      recommendSMS,
				Region:      recommendRegion,
				CurrentPlan: recommendPlan,
				Spend:       recommendSpend,
			})
		}
		if err != nil {
			return err
		}

		if recommendJSON {
			return json.NewEncoder(os.Stdout).Encode(pred)
		}
		fmt.Printf("Recommended plan: %s (source: %s)\n", pred.Plan, pred.Source)
		fmt.Printf("Estimated bill:   ₹%s  (savings: ₹%s)\n", pred.EstimatedBill, pred.EstimatedSavings)
		fmt.Println(pred.Reason)
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int64Var(&recommendCustomer, "customer", 0, "recommend from a customer's stored usage")
	recommendCmd.Flags().Float64Var(&recommendData, "data", 0, "average monthly data usage in GB")
	recommendCmd.Flags().Float64Var(&recommendMinutes, "minutes", 0, "average monthly voice minutes")
	recommendCmd.Flags().Float64Var(&recommendSMS, "sms", 0, "average monthly SMS count")
	recommendCmd.Flags().StringVar(&recommendRegion, "region", "delhi", "customer region")
	recommendCmd.Flags().StringVar(&recommendPlan, "plan", "basic", "currently subscribed plan")
	recommendCmd.Flags().Float64Var(&recommendSpend, "spend", 0, "current monthly spend")
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "emit raw JSON")
}
