package model

import (
	"errors"
	"fmt"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// ErrSchemaMismatch is returned when a feature vector cannot be encoded
// under the schema a classifier was trained against. Inputs outside the
// recorded domains are rejected, never silently coerced.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Numeric feature names, in encoding order.
const (
	FieldAvgDataGB  = "avg_data_gb"
	FieldAvgMinutes = "avg_minutes"
	FieldAvgSMS     = "avg_sms"
	FieldSpend      = "spend"
)

// NumericField records standardization parameters for one numeric input.
type NumericField struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Schema pins the exact feature encoding a classifier was trained with:
// ordered numeric fields with their standardization parameters, the one-hot
// domains for the categorical fields, and the ordered output classes.
type Schema struct {
	Numeric []NumericField `json:"numeric"`
	Regions []usage.Region `json:"regions"`
	Plans   []plan.ID      `json:"plans"`
	Classes []plan.ID      `json:"classes"`
}

// Dim returns the encoded input width.
func (s *Schema) Dim() int {
	return len(s.Numeric) + len(s.Regions) + len(s.Plans)
}

// Encode turns a feature vector into the model input layout. Any value the
// schema does not know (unseen region, unseen current plan, missing numeric
// field) fails with ErrSchemaMismatch.
func (s *Schema) Encode(v usage.FeatureVector) ([]float64, error) {
	x := make([]float64, 0, s.Dim())

	for _, f := range s.Numeric {
		raw, err := numericValue(v, f.Name)
		if err != nil {
			return nil, err
		}
		std := f.Std
		if std == 0 {
			std = 1
		}
		x = append(x, (raw-f.Mean)/std)
	}

	region, err := oneHot(len(s.Regions), indexOf(s.Regions, v.Region))
	if err != nil {
		return nil, fmt.Errorf("%w: region %q not in trained domain", ErrSchemaMismatch, v.Region)
	}
	x = append(x, region...)

	current, err := oneHot(len(s.Plans), indexOf(s.Plans, v.CurrentPlan))
	if err != nil {
		return nil, fmt.Errorf("%w: plan %q not in trained domain", ErrSchemaMismatch, v.CurrentPlan)
	}
	x = append(x, current...)

	return x, nil
}

// ClassIndex maps a label to its class slot, or ErrSchemaMismatch.
func (s *Schema) ClassIndex(id plan.ID) (int, error) {
	i := indexOf(s.Classes, id)
	if i < 0 {
		return 0, fmt.Errorf("%w: class %q not in trained classes", ErrSchemaMismatch, id)
	}
	return i, nil
}

func numericValue(v usage.FeatureVector, name string) (float64, error) {
	switch name {
	case FieldAvgDataGB:
		return v.AvgDataGB, nil
	case FieldAvgMinutes:
		return v.AvgMinutes, nil
	case FieldAvgSMS:
		return v.AvgSMS, nil
	case FieldSpend:
		return v.Spend, nil
	default:
		return 0, fmt.Errorf("%w: unknown numeric field %q", ErrSchemaMismatch, name)
	}
}

func indexOf[T comparable](domain []T, value T) int {
	for i, d := range domain {
		if d == value {
			return i
		}
	}
	return -1
}

func oneHot(width, hot int) ([]float64, error) {
	if hot < 0 || hot >= width {
		return nil, ErrSchemaMismatch
	}
	vec := make([]float64, width)
	vec[hot] = 1
	return vec, nil
}
