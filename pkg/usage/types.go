package usage

import (
	"fmt"
	"strings"
	"time"

	"github.com/tariffwise/tariffwise/pkg/plan"
)

// Region is the closed set of markets a customer can belong to. Keeping the
// enumeration closed lets the model schema detect drift instead of silently
// encoding unseen values.
type Region string

const (
	RegionDelhi     Region = "delhi"
	RegionMumbai    Region = "mumbai"
	RegionBangalore Region = "bangalore"
	RegionChennai   Region = "chennai"
	RegionKolkata   Region = "kolkata"
	RegionHyderabad Region = "hyderabad"
	RegionPune      Region = "pune"
	RegionAhmedabad Region = "ahmedabad"
)

// Regions lists all known regions in a stable order.
func Regions() []Region {
	return []Region{
		RegionDelhi, RegionMumbai, RegionBangalore, RegionChennai,
		RegionKolkata, RegionHyderabad, RegionPune, RegionAhmedabad,
	}
}

// ParseRegion normalizes and validates a region string.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Regions() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// Event is a single observed billing-cycle usage record for a customer.
// Events are immutable once recorded; ingestion happens upstream.
type Event struct {
	CustomerID  int64     `json:"customer_id"`
	Timestamp   time.Time `json:"timestamp"`
	DataGB      float64   `json:"data_gb"`
	Minutes     int       `json:"minutes"`
	SMS         int       `json:"sms"`
	Region      Region    `json:"region"`
	CurrentPlan plan.ID   `json:"current_plan"`
	Spend       float64   `json:"spend"`
}

// Validate rejects events that violate the recorded-data invariants.
func (e Event) Validate() error {
	if e.CustomerID <= 0 {
		return fmt.Errorf("invalid customer id %d", e.CustomerID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("customer %d: missing timestamp", e.CustomerID)
	}
	if e.DataGB < 0 || e.Minutes < 0 || e.SMS < 0 || e.Spend < 0 {
		return fmt.Errorf("customer %d: negative usage", e.CustomerID)
	}
	if _, err := ParseRegion(string(e.Region)); err != nil {
		return fmt.Errorf("customer %d: %w", e.CustomerID, err)
	}
	return nil
}

// FeatureVector is the per-customer aggregate the cost model and the
// classifier both consume: averaged usage over the window plus the most
// recent categorical observations.
type FeatureVector struct {
	CustomerID  int64   `json:"customer_id"`
	AvgDataGB   float64 `json:"avg_data_gb"`
	AvgMinutes  float64 `json:"avg_minutes"`
	AvgSMS      float64 `json:"avg_sms"`
	Region      Region  `json:"region"`
	CurrentPlan plan.ID `json:"current_plan"`
	Spend       float64 `json:"spend"`

	// WindowDays and EventCount describe the aggregation that produced
	// this vector.
	WindowDays int `json:"window_days"`
	EventCount int `json:"event_count"`
}

// Usage projects the vector onto the cost model's input.
func (v FeatureVector) Usage() plan.Usage {
	return plan.Usage{DataGB: v.AvgDataGB, Minutes: v.AvgMinutes, SMS: v.AvgSMS}
}
