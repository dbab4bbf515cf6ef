package plan

import (
	"github.com/shopspring/decimal"
)

// Usage is the averaged monthly consumption the cost model prices. It is
// deliberately minimal so that both offline labeling and online
// recommendation can share the same arithmetic.
type Usage struct {
	DataGB  float64
	Minutes float64
	SMS     float64
}

// PlanCost pairs a plan with its computed monthly cost.
type PlanCost struct {
	Plan ID              `json:"plan"`
	Cost decimal.Decimal `json:"cost"`
}

// Cost computes the monthly cost of usage on plan id. Overage terms floor at
// zero: underuse earns no credit. The computation is pure and
// order-independent, so identical inputs always price identically.
func (c *Catalog) Cost(u Usage, id ID) (decimal.Decimal, error) {
	p, err := c.Get(id)
	if err != nil {
		return decimal.Zero, err
	}
	return costOf(p, u), nil
}

func costOf(p Plan, u Usage) decimal.Decimal {
	total := p.BaseFee
	total = total.Add(overage(u.DataGB, p.DataGB, p.DataOverage))
	total = total.Add(overage(u.Minutes, p.Minutes, p.MinuteOverage))
	total = total.Add(overage(u.SMS, p.SMS, p.SMSOverage))
	return total
}

func overage(used, included float64, rate decimal.Decimal) decimal.Decimal {
	excess := used - included
	if excess <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(excess).Mul(rate)
}

// CostBreakdown prices usage against every plan, in catalog order.
func (c *Catalog) CostBreakdown(u Usage) []PlanCost {
	out := make([]PlanCost, len(c.plans))
	for i, p := range c.plans {
		out[i] = PlanCost{Plan: p.ID, Cost: costOf(p, u)}
	}
	return out
}
