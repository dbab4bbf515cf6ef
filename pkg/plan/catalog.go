package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// ID identifies a plan in the catalog.
type ID string

const (
	Basic    ID = "basic"
	Standard ID = "standard"
	Premium  ID = "premium"
)

// ErrInvalidPlan is returned when a plan ID is not present in the catalog.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan describes a tariff: a base fee, included allowances, and per-unit
// overage rates for usage beyond each allowance.
type Plan struct {
	ID            ID              `json:"id"`
	BaseFee       decimal.Decimal `json:"base_fee"`
	DataGB        float64         `json:"data_gb"`
	Minutes       float64         `json:"minutes"`
	SMS           float64         `json:"sms"`
	DataOverage   decimal.Decimal `json:"data_overage_per_gb"`
	MinuteOverage decimal.Decimal `json:"minute_overage"`
	SMSOverage    decimal.Decimal `json:"sms_overage"`
}

// Catalog is the ordered set of plans offered. Declaration order is
// significant: it is the final tie-break key when selecting the best plan.
type Catalog struct {
	plans []Plan
	index map[ID]int
}

// New builds a catalog from an ordered plan list and validates it.
func New(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("catalog must contain at least one plan")
	}
	index := make(map[ID]int, len(plans))
	for i, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan %d: missing id", i)
		}
		if _, dup := index[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.BaseFee.IsNegative() || p.DataOverage.IsNegative() || p.MinuteOverage.IsNegative() || p.SMSOverage.IsNegative() {
			return nil, fmt.Errorf("plan %q: negative fee or rate", p.ID)
		}
		if p.DataGB < 0 || p.Minutes < 0 || p.SMS < 0 {
			return nil, fmt.Errorf("plan %q: negative allowance", p.ID)
		}
		index[p.ID] = i
	}
	return &Catalog{plans: plans, index: index}, nil
}

// Load reads a catalog from a JSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return New(plans)
}

// Plans returns the plans in declaration order. The returned slice must not
// be mutated.
func (c *Catalog) Plans() []Plan {
	return c.plans
}

// Get returns the plan for id, or ErrInvalidPlan.
func (c *Catalog) Get(id ID) (Plan, error) {
	i, ok := c.index[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrInvalidPlan, id)
	}
	return c.plans[i], nil
}

// Contains reports whether id is a catalog plan.
func (c *Catalog) Contains(id ID) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns the plan IDs in declaration order.
func (c *Catalog) IDs() []ID {
	ids := make([]ID, len(c.plans))
	for i, p := range c.plans {
		ids[i] = p.ID
	}
	return ids
}
