package plan

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBestPlan_LightUser(t *testing.T) {
	c := testCatalog(t)

	best, err := c.BestPlan(Usage{DataGB: 3, Minutes: 200, SMS: 10})
	if err != nil {
		t.Fatalf("BestPlan: %v", err)
	}
	if best != Basic {
		t.Errorf("light usage should label basic, got %s", best)
	}
}

func TestBestPlan_HeavyUser(t *testing.T) {
	c := testCatalog(t)

	// 60GB on basic incurs 275 in data overage alone; premium absorbs it
	// within allowances at its 60 base fee.
	best, err := c.BestPlan(Usage{DataGB: 60, Minutes: 2500, SMS: 5})
	if err != nil {
		t.Fatalf("BestPlan: %v", err)
	}
	if best != Premium {
		t.Errorf("heavy usage should label premium, got %s", best)
	}
}

func TestBestPlan_TieBreakLowerBaseFee(t *testing.T) {
	// Both plans cost exactly 20 for 2GB: "flat" from its base fee alone,
	// "metered" from 10 base plus 2GB at 5/GB. The lower base fee wins.
	c, err := New([]Plan{
		{ID: "flat", BaseFee: decimal.NewFromInt(20), DataGB: 100},
		{ID: "metered", BaseFee: decimal.NewFromInt(10), DataOverage: decimal.NewFromInt(5)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	best, err := c.BestPlan(Usage{DataGB: 2})
	if err != nil {
		t.Fatalf("BestPlan: %v", err)
	}
	if best != "metered" {
		t.Errorf("equal cost should prefer lower base fee, got %s", best)
	}
}

func TestBestPlan_TieBreakCatalogOrder(t *testing.T) {
	c, err := New([]Plan{
		{ID: "first", BaseFee: decimal.NewFromInt(15), DataGB: 10},
		{ID: "second", BaseFee: decimal.NewFromInt(15), DataGB: 10},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	best, err := c.BestPlan(Usage{DataGB: 5})
	if err != nil {
		t.Fatalf("BestPlan: %v", err)
	}
	if best != "first" {
		t.Errorf("identical plans should resolve to catalog order, got %s", best)
	}
}

func TestBestPlan_Deterministic(t *testing.T) {
	c := testCatalog(t)
	u := Usage{DataGB: 25, Minutes: 1500, SMS: 500}

	first, err := c.BestPlan(u)
	if err != nil {
		t.Fatalf("BestPlan: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := c.BestPlan(u)
		if err != nil {
			t.Fatalf("BestPlan: %v", err)
		}
		if got != first {
			t.Fatalf("run %d: label changed from %s to %s", i, first, got)
		}
	}
}
