package model

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// ErrInsufficientData is returned when a training set has fewer distinct
// customers than the configured minimum. Training aborts without publishing
// and the prior latest pointer stays valid.
var ErrInsufficientData = errors.New("insufficient training data")

// Example pairs a feature vector with its cost-model-derived label.
type Example struct {
	Features usage.FeatureVector
	Label    plan.ID
}

// TrainerConfig controls the training run.
type TrainerConfig struct {
	MinCustomers    int
	Seed            int64
	LearningRate    float64
	Epochs          int
	HoldoutFraction float64
}

const (
	defaultLearningRate    = 0.1
	defaultEpochs          = 200
	defaultHoldoutFraction = 0.2
)

// Trainer fits a classifier that approximates the deterministic cost-model
// labeling. Given a fixed seed the fit is fully reproducible.
type Trainer struct {
	cfg     TrainerConfig
	catalog *plan.Catalog
}

// NewTrainer creates a trainer bound to a plan catalog.
func NewTrainer(catalog *plan.Catalog, cfg TrainerConfig) *Trainer {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = defaultLearningRate
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = defaultEpochs
	}
	if cfg.HoldoutFraction <= 0 || cfg.HoldoutFraction >= 1 {
		cfg.HoldoutFraction = defaultHoldoutFraction
	}
	return &Trainer{cfg: cfg, catalog: catalog}
}

// Train fits a classifier on the labeled examples and wraps it in an
// unversioned artifact ready for publishing.
func (t *Trainer) Train(ctx context.Context, examples []Example) (*Artifact, error) {
	distinct := map[int64]struct{}{}
	for _, ex := range examples {
		distinct[ex.Features.CustomerID] = struct{}{}
	}
	if len(distinct) < t.cfg.MinCustomers {
		return nil, fmt.Errorf("%w: %d distinct customers, need %d",
			ErrInsufficientData, len(distinct), t.cfg.MinCustomers)
	}

	train, holdout := t.split(examples)
	if len(train) == 0 {
		train, holdout = examples, nil
	}

	schema := t.buildSchema(train)

	encoded := make([][]float64, len(train))
	labels := make([]int, len(train))
	for i, ex := range train {
		x, err := schema.Encode(ex.Features)
		if err != nil {
			return nil, fmt.Errorf("training example %d: %w", i, err)
		}
		k, err := schema.ClassIndex(ex.Label)
		if err != nil {
			return nil, fmt.Errorf("training example %d: %w", i, err)
		}
		encoded[i] = x
		labels[i] = k
	}

	clf := &Classifier{
		Schema:  schema,
		Weights: zeroWeights(len(schema.Classes), schema.Dim()+1),
	}
	t.fit(ctx, clf, encoded, labels)

	eval := holdout
	if len(eval) == 0 {
		eval = train
	}
	fidelity := fidelityOn(clf, eval)

	return &Artifact{
		TrainedAt:  time.Now().UTC(),
		Classifier: *clf,
		Metadata: Metadata{
			TrainingExamples: len(train),
			HoldoutExamples:  len(holdout),
			HoldoutFidelity:  fidelity,
			Seed:             t.cfg.Seed,
			Epochs:           t.cfg.Epochs,
		},
	}, nil
}

// split partitions examples by a stable hash of the customer ID, so the
// same customer always lands on the same side across runs.
func (t *Trainer) split(examples []Example) (train, holdout []Example) {
	threshold := uint32(t.cfg.HoldoutFraction * 100)
	for _, ex := range examples {
		h := fnv.New32a()
		var buf [8]byte
		id := uint64(ex.Features.CustomerID)
		for i := 0; i < 8; i++ {
			buf[i] = byte(id >> (8 * i))
		}
		h.Write(buf[:])
		if h.Sum32()%100 < threshold {
			holdout = append(holdout, ex)
		} else {
			train = append(train, ex)
		}
	}
	return train, holdout
}

// buildSchema records standardization parameters from the training split
// and the closed categorical domains. Classes follow catalog order.
func (t *Trainer) buildSchema(train []Example) Schema {
	names := []string{FieldAvgDataGB, FieldAvgMinutes, FieldAvgSMS, FieldSpend}
	numeric := make([]NumericField, len(names))
	for i, name := range names {
		var sum, sumSq float64
		for _, ex := range train {
			v, _ := numericValue(ex.Features, name)
			sum += v
			sumSq += v * v
		}
		n := float64(len(train))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		numeric[i] = NumericField{Name: name, Mean: mean, Std: math.Sqrt(variance)}
	}
	return Schema{
		Numeric: numeric,
		Regions: usage.Regions(),
		Plans:   t.catalog.IDs(),
		Classes: t.catalog.IDs(),
	}
}

// fit runs seeded stochastic gradient descent on the softmax objective.
func (t *Trainer) fit(ctx context.Context, clf *Classifier, x [][]float64, y []int) {
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if ctx.Err() != nil {
			return
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			xi := x[idx]
			probs := softmax(clf.logits(xi))
			for k := range clf.Weights {
				grad := probs[k]
				if k == y[idx] {
					grad -= 1
				}
				w := clf.Weights[k]
				for j, xj := range xi {
					w[j] -= t.cfg.LearningRate * grad * xj
				}
				w[len(w)-1] -= t.cfg.LearningRate * grad // bias
			}
		}
	}
}

func fidelityOn(clf *Classifier, examples []Example) float64 {
	if len(examples) == 0 {
		return 0
	}
	matched := 0
	for _, ex := range examples {
		pred, err := clf.Predict(ex.Features)
		if err == nil && pred == ex.Label {
			matched++
		}
	}
	return float64(matched) / float64(len(examples))
}

func zeroWeights(classes, width int) [][]float64 {
	w := make([][]float64, classes)
	for k := range w {
		w[k] = make([]float64, width)
	}
	return w
}
