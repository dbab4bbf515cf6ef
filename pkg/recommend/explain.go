package recommend

import (
	"fmt"
)

// Explain renders a customer-facing rationale for a prediction.
func Explain(p Prediction) string {
	reasonText := "for better data benefits and to avoid extra charges"
	if p.EstimatedSavings.IsPositive() {
		reasonText = "to save money"
	}
	return fmt.Sprintf(
		"Customer currently spends ₹%.0f/month. Based on their usage (%.1fGB data, %.0f mins calls, %.0f SMS), the %s plan at ₹%s is recommended %s.",
		p.Features.Spend,
		p.Features.AvgDataGB,
		p.Features.AvgMinutes,
		p.Features.AvgSMS,
		p.Plan,
		p.EstimatedBill.StringFixed(0),
		reasonText,
	)
}
