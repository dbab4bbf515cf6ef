package plan

import "errors"

// BestPlan returns the catalog plan with the minimum cost for u.
//
// Ties are resolved deterministically: equal costs prefer the lower base
// fee, and equal base fees prefer earlier catalog declaration order. Argmin
// over costs alone would be nondeterministic whenever two plans price
// identically, which breaks label reproducibility.
func (c *Catalog) BestPlan(u Usage) (ID, error) {
	if len(c.plans) == 0 {
		return "", errors.New("empty catalog")
	}
	best := c.plans[0]
	bestCost := costOf(best, u)
	for _, p := range c.plans[1:] {
		cost := costOf(p, u)
		switch cost.Cmp(bestCost) {
		case -1:
			best, bestCost = p, cost
		case 0:
			if p.BaseFee.Cmp(best.BaseFee) < 0 {
				best, bestCost = p, cost
			}
		}
	}
	return best.ID, nil
}
