package model

import (
	"math"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// Classifier is a multinomial logistic regression model over the encoded
// feature space. It is plain data so artifacts serialize without custom
// codecs.
type Classifier struct {
	Schema  Schema      `json:"schema"`
	Weights [][]float64 `json:"weights"` // per class: Dim() weights + trailing bias
}

// Predict encodes the feature vector under the trained schema and returns
// the highest-scoring class. On a score tie the earlier class (catalog
// order) wins, keeping prediction deterministic.
func (c *Classifier) Predict(v usage.FeatureVector) (plan.ID, error) {
	x, err := c.Schema.Encode(v)
	if err != nil {
		return "", err
	}
	scores := c.logits(x)
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return c.Schema.Classes[best], nil
}

// logits computes the raw per-class scores for an encoded input.
func (c *Classifier) logits(x []float64) []float64 {
	scores := make([]float64, len(c.Weights))
	for k, w := range c.Weights {
		s := w[len(w)-1] // bias
		for i, xi := range x {
			s += w[i] * xi
		}
		scores[k] = s
	}
	return scores
}

// softmax converts logits into class probabilities, shifted by the max for
// numerical stability.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
