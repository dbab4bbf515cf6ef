package model

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

func trainerCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	c, err := plan.New([]plan.Plan{
		{
			ID: plan.Basic, BaseFee: decimal.NewFromInt(199),
			DataGB: 10, Minutes: 200, SMS: 100,
			DataOverage: decimal.NewFromInt(15), MinuteOverage: decimal.NewFromFloat(0.6), SMSOverage: decimal.NewFromFloat(0.25),
		},
		{
			ID: plan.Standard, BaseFee: decimal.NewFromInt(499),
			DataGB: 50, Minutes: 1000, SMS: 500,
			DataOverage: decimal.NewFromInt(10), MinuteOverage: decimal.NewFromFloat(0.45), SMSOverage: decimal.NewFromFloat(0.2),
		},
		{
			ID: plan.Premium, BaseFee: decimal.NewFromInt(999),
			DataGB: 200, Minutes: 3000, SMS: 2000,
			DataOverage: decimal.NewFromInt(6), MinuteOverage: decimal.NewFromFloat(0.3), SMSOverage: decimal.NewFromFloat(0.15),
		},
	})
	require.NoError(t, err)
	return c
}

// syntheticExamples builds a deterministic labeled population spanning light,
// medium and heavy usage profiles.
func syntheticExamples(t *testing.T, catalog *plan.Catalog, customers int) []Example {
	t.Helper()
	regions := usage.Regions()
	plans := catalog.IDs()

	examples := make([]Example, 0, customers)
	for id := int64(1); id <= int64(customers); id++ {
		profile := id % 3
		v := usage.FeatureVector{
			CustomerID:  id,
			Region:      regions[id%int64(len(regions))],
			CurrentPlan: plans[id%int64(len(plans))],
			WindowDays:  30,
			EventCount:  4,
		}
		switch profile {
		case 0:
			v.AvgDataGB = 2 + float64(id%5)
			v.AvgMinutes = 100 + float64(id%50)
			v.AvgSMS = 10
			v.Spend = 250
		case 1:
			v.AvgDataGB = 30 + float64(id%10)
			v.AvgMinutes = 700 + float64(id%100)
			v.AvgSMS = 300
			v.Spend = 600
		default:
			v.AvgDataGB = 150 + float64(id%30)
			v.AvgMinutes = 2500 + float64(id%200)
			v.AvgSMS = 1500
			v.Spend = 1400
		}

		label, err := catalog.BestPlan(v.Usage())
		require.NoError(t, err)
		examples = append(examples, Example{Features: v, Label: label})
	}
	return examples
}

func TestTrain_InsufficientData(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 1})

	examples := syntheticExamples(t, catalog, 10)
	_, err := trainer.Train(context.Background(), examples)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = trainer.Train(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Degenerate set: everyone labeled identically, still below the minimum.
	uniform := syntheticExamples(t, catalog, 12)
	for i := range uniform {
		uniform[i].Label = plan.Basic
	}
	_, err = trainer.Train(context.Background(), uniform)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrain_DuplicateEventsDoNotInflateCustomerCount(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 1})

	// 10 customers repeated 5 times each is still 10 customers.
	base := syntheticExamples(t, catalog, 10)
	var repeated []Example
	for i := 0; i < 5; i++ {
		repeated = append(repeated, base...)
	}

	_, err := trainer.Train(context.Background(), repeated)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrain_Succeeds(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 42})
	examples := syntheticExamples(t, catalog, 120)

	artifact, err := trainer.Train(context.Background(), examples)
	require.NoError(t, err)

	assert.Empty(t, artifact.Version, "version is assigned at publish, not train")
	assert.False(t, artifact.TrainedAt.IsZero())
	assert.Equal(t, int64(42), artifact.Metadata.Seed)
	assert.Equal(t, len(examples), artifact.Metadata.TrainingExamples+artifact.Metadata.HoldoutExamples)
	assert.GreaterOrEqual(t, artifact.Metadata.HoldoutFidelity, 0.0)
	assert.LessOrEqual(t, artifact.Metadata.HoldoutFidelity, 1.0)

	clf := artifact.Classifier
	require.Len(t, clf.Weights, len(catalog.IDs()))
	for _, w := range clf.Weights {
		assert.Len(t, w, clf.Schema.Dim()+1)
	}

	// The trained model must predict for every example it saw.
	for _, ex := range examples[:10] {
		_, err := clf.Predict(ex.Features)
		assert.NoError(t, err)
	}
}

func TestTrain_DeterministicForFixedSeed(t *testing.T) {
	catalog := trainerCatalog(t)
	examples := syntheticExamples(t, catalog, 80)

	first, err := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 7}).
		Train(context.Background(), examples)
	require.NoError(t, err)

	second, err := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 7}).
		Train(context.Background(), examples)
	require.NoError(t, err)

	assert.Equal(t, first.Classifier.Weights, second.Classifier.Weights)
	assert.Equal(t, first.Classifier.Schema, second.Classifier.Schema)
	assert.Equal(t, first.Metadata.HoldoutFidelity, second.Metadata.HoldoutFidelity)
}

func TestSplit_StablePerCustomer(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 1, Seed: 1})
	examples := syntheticExamples(t, catalog, 200)

	train1, holdout1 := trainer.split(examples)
	train2, holdout2 := trainer.split(examples)
	assert.Equal(t, len(train1), len(train2))
	assert.Equal(t, len(holdout1), len(holdout2))

	// A customer never straddles the split.
	side := map[int64]bool{}
	for _, ex := range train1 {
		side[ex.Features.CustomerID] = true
	}
	for _, ex := range holdout1 {
		if side[ex.Features.CustomerID] {
			t.Fatalf("customer %d present on both sides of the split", ex.Features.CustomerID)
		}
	}
	assert.NotEmpty(t, holdout1, "a 200 customer population should yield holdout examples")
}

func TestTrain_RejectsLabelOutsideCatalog(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 1, Seed: 1})

	examples := syntheticExamples(t, catalog, 40)
	examples[0].Label = "platinum"

	_, err := trainer.Train(context.Background(), examples)
	if err == nil {
		// The corrupted example may land in the holdout split, where labels
		// are only compared, never encoded. Force it through every slot.
		for i := range examples {
			examples[i].Label = "platinum"
		}
		_, err = trainer.Train(context.Background(), examples)
	}
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestArtifactRoundTrip(t *testing.T) {
	catalog := trainerCatalog(t)
	trainer := NewTrainer(catalog, TrainerConfig{MinCustomers: 25, Seed: 3})

	artifact, err := trainer.Train(context.Background(), syntheticExamples(t, catalog, 60))
	require.NoError(t, err)
	artifact.Version = "20260801T000000Z-deadbeef"

	data, err := artifact.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalArtifact(data)
	require.NoError(t, err)
	assert.Equal(t, artifact.Version, restored.Version)
	assert.Equal(t, artifact.Classifier.Weights, restored.Classifier.Weights)
	assert.Equal(t, artifact.Metadata, restored.Metadata)

	// A restored model predicts identically to the in-memory one.
	v := syntheticExamples(t, catalog, 5)[0].Features
	want, err := artifact.Classifier.Predict(v)
	require.NoError(t, err)
	got, err := restored.Classifier.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUnmarshalArtifact_RejectsEmpty(t *testing.T) {
	cases := []string{
		`{}`,
		`{"classifier":{"weights":[],"schema":{"classes":[]}}}`,
		`{"classifier":{"weights":[[0.1]],"schema":{"classes":[]}}}`,
	}
	for i, raw := range cases {
		if _, err := UnmarshalArtifact([]byte(raw)); err == nil {
			t.Errorf("case %d: expected error for incomplete artifact", i)
		}
	}
	if _, err := UnmarshalArtifact([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
