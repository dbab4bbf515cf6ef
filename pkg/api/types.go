package api

import (
	"github.com/shopspring/decimal"

	"github.com/tariffwise/tariffwise/pkg/recommend"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// RecommendRequest is the POST /v1/recommend body: an already-aggregated
// feature vector.
type RecommendRequest struct {
	CustomerID  int64   `json:"customer_id"`
	AvgDataGB   float64 `json:"avg_data_gb"`
	AvgMinutes  float64 `json:"avg_minutes"`
	AvgSMS      float64 `json:"avg_sms"`
	Region      string  `json:"region"`
	CurrentPlan string  `json:"current_plan"`
	Spend       float64 `json:"spend"`
}

// IngestRequest is the POST /v1/events body.
type IngestRequest struct {
	Events []usage.Event `json:"events"`
}

// IngestResponse acknowledges an accepted batch.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

// CustomersResponse lists customers active in the aggregation window.
type CustomersResponse struct {
	Customers []usage.FeatureVector `json:"customers"`
	Total     int                   `json:"total"`
}

// CustomerOpportunity is one row of a savings or upsell report.
type CustomerOpportunity struct {
	CustomerID int64                `json:"customer_id"`
	Region     usage.Region         `json:"region"`
	Prediction recommend.Prediction `json:"prediction"`
}

// OpportunitiesResponse is the top_savings / top_upsell payload.
type OpportunitiesResponse struct {
	Results []CustomerOpportunity `json:"results"`
	Total   int                   `json:"total"`
}

// SummaryStatsResponse aggregates spend and opportunity counts, optionally
// filtered by region.
type SummaryStatsResponse struct {
	Region            string          `json:"region"`
	TotalCustomers    int             `json:"total_customers"`
	AvgMonthlySpend   decimal.Decimal `json:"avg_monthly_spend"`
	TotalCurrentSpend decimal.Decimal `json:"total_current_spend"`
	Savings           OpportunityStat `json:"savings_opportunities"`
	Upsell            OpportunityStat `json:"upsell_opportunities"`
}

// OpportunityStat is a count plus a money total.
type OpportunityStat struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ModelsResponse describes the registry contents.
type ModelsResponse struct {
	Versions []string `json:"versions"`
	Latest   string   `json:"latest,omitempty"`
	Loaded   string   `json:"loaded,omitempty"`
}

// TrainResponse reports an on-demand training run.
type TrainResponse struct {
	Version string `json:"version"`
}

// HealthResponse is the GET /v1/health payload.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version,omitempty"`
}
