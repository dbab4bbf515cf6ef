package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Artifact is a serialized, versioned trained classifier together with the
// schema it was trained against. Immutable after publish; the version field
// is assigned by the registry.
type Artifact struct {
	Version    string     `json:"version"`
	TrainedAt  time.Time  `json:"trained_at"`
	Classifier Classifier `json:"classifier"`
	Metadata   Metadata   `json:"metadata"`
}

// Metadata records how the artifact was produced. HoldoutFidelity is the
// share of held-out examples whose prediction matched the cost-model label;
// that agreement, not accuracy against external ground truth, is the
// quality target.
type Metadata struct {
	TrainingExamples int     `json:"training_examples"`
	HoldoutExamples  int     `json:"holdout_examples"`
	HoldoutFidelity  float64 `json:"holdout_fidelity"`
	Seed             int64   `json:"seed"`
	Epochs           int     `json:"epochs"`
	WindowDays       int     `json:"window_days,omitempty"`
}

// Marshal serializes the artifact for blob storage.
func (a *Artifact) Marshal() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return data, nil
}

// UnmarshalArtifact deserializes an artifact fetched from blob storage.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	if len(a.Classifier.Weights) == 0 || len(a.Classifier.Schema.Classes) == 0 {
		return nil, fmt.Errorf("artifact missing classifier weights or classes")
	}
	return &a, nil
}
