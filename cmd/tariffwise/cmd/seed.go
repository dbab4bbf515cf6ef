package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

var (
	seedCustomers int
	seedSeed      int64
	seedWeeks     int
)

// Spend tiers by region, mirroring how the markets actually behave: metro
// regions skew heavy, smaller markets skew light.
var (
	highRegions = []usage.Region{usage.RegionDelhi, usage.RegionMumbai}
	midRegions  = []usage.Region{usage.RegionBangalore, usage.RegionHyderabad, usage.RegionChennai}
	lowRegions  = []usage.Region{usage.RegionKolkata, usage.RegionPune, usage.RegionAhmedabad}
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate and ingest synthetic usage events",
	Long: `seed generates a deterministic synthetic customer population and ingests
weekly usage events for each customer through the daemon API. The same seed
always produces the same events, so seeded environments are reproducible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events := generateEvents(seedCustomers, seedWeeks, seedSeed, time.Now().UTC())

		accepted, err := apiClient().IngestEvents(cmd.Context(), events)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d events for %d customers\n", accepted, seedCustomers)
		return nil
	},
}

func generateEvents(customers, weeks int, seed int64, now time.Time) []usage.Event {
	rng := rand.New(rand.NewSource(seed))
	plans := []plan.ID{plan.Basic, plan.Standard, plan.Premium}

	events := make([]usage.Event, 0, customers*weeks)
	for id := int64(1); id <= int64(customers); id++ {
		var region usage.Region
		var dataLo, dataHi, minLo, minHi, smsLo, smsHi, spendLo, spendHi float64

		switch tier := rng.Intn(3); tier {
		case 0:
			region = highRegions[rng.Intn(len(highRegions))]
			dataLo, dataHi, minLo, minHi, smsLo, smsHi, spendLo, spendHi = 50, 250, 1000, 4000, 500, 2000, 799, 1999
		case 1:
			region = midRegions[rng.Intn(len(midRegions))]
			dataLo, dataHi, minLo, minHi, smsLo, smsHi, spendLo, spendHi = 20, 120, 500, 2500, 200, 1200, 399, 1299
		default:
			region = lowRegions[rng.Intn(len(lowRegions))]
			dataLo, dataHi, minLo, minHi, smsLo, smsHi, spendLo, spendHi = 1, 60, 50, 1500, 0, 800, 99, 799
		}

		currentPlan := plans[rng.Intn(len(plans))]
		spend := uniform(rng, spendLo, spendHi)

		for week := 0; week < weeks; week++ {
			events = append(events, usage.Event{
				CustomerID:  id,
				Timestamp:   now.AddDate(0, 0, -7*week),
				DataGB:      uniform(rng, dataLo, dataHi),
				Minutes:     int(uniform(rng, minLo, minHi)),
				SMS:         int(uniform(rng, smsLo, smsHi)),
				Region:      region,
				CurrentPlan: currentPlan,
				Spend:       spend,
			})
		}
	}
	return events
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 500, "number of customers to generate")
	seedCmd.Flags().IntVar(&seedWeeks, "weeks", 4, "weekly events per customer")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 42, "random seed")
}
