package usage

import (
	"time"
)

// Aggregate folds raw events into one feature vector per customer.
//
// Only events inside the trailing window [now-windowDays, now] count. Usage
// dimensions are arithmetic means; region, current plan and spend are taken
// from the most recent in-window event (later timestamp wins; on an exact
// timestamp tie the later event in input order wins, keeping the result
// stable for a fixed input). Customers with no in-window events are simply
// absent: no synthetic zero-fill. An empty input is a valid empty result.
func Aggregate(events []Event, now time.Time, windowDays int) map[int64]FeatureVector {
	cutoff := now.AddDate(0, 0, -windowDays)

	type acc struct {
		sumData    float64
		sumMinutes float64
		sumSMS     float64
		count      int
		latest     Event
	}

	accs := make(map[int64]*acc)
	for _, e := range events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		a, ok := accs[e.CustomerID]
		if !ok {
			a = &acc{latest: e}
			accs[e.CustomerID] = a
		}
		a.sumData += e.DataGB
		a.sumMinutes += float64(e.Minutes)
		a.sumSMS += float64(e.SMS)
		a.count++
		if !e.Timestamp.Before(a.latest.Timestamp) {
			a.latest = e
		}
	}

	vectors := make(map[int64]FeatureVector, len(accs))
	for id, a := range accs {
		n := float64(a.count)
		vectors[id] = FeatureVector{
			CustomerID:  id,
			AvgDataGB:   a.sumData / n,
			AvgMinutes:  a.sumMinutes / n,
			AvgSMS:      a.sumSMS / n,
			Region:      a.latest.Region,
			CurrentPlan: a.latest.CurrentPlan,
			Spend:       a.latest.Spend,
			WindowDays:  windowDays,
			EventCount:  a.count,
		}
	}
	return vectors
}
