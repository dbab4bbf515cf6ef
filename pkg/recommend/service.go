package recommend

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tariffwise/tariffwise/pkg/model"
	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/registry"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// Source tags how a prediction was produced.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// ErrPredictionTimeout marks an inference that exceeded the configured
// bound. Internal only: the caller receives a fallback prediction, never
// this error.
var ErrPredictionTimeout = errors.New("prediction timed out")

// Prediction is the per-request recommendation output.
type Prediction struct {
	Features         usage.FeatureVector `json:"features"`
	Plan             plan.ID             `json:"recommended_plan"`
	Source           Source              `json:"source"`
	Costs            []plan.PlanCost     `json:"costs"`
	EstimatedBill    decimal.Decimal     `json:"estimated_monthly_bill"`
	EstimatedSavings decimal.Decimal     `json:"estimated_savings"`
	Reason           string              `json:"recommendation_reason"`
	ModelVersion     string              `json:"model_version,omitempty"`
}

// Config bounds the service's registry coupling and inference latency.
type Config struct {
	RefreshInterval  time.Duration
	InferenceTimeout time.Duration
}

const (
	defaultRefreshInterval  = 30 * time.Second
	defaultInferenceTimeout = 250 * time.Millisecond
)

// Service is the online recommendation entry point. It keeps one cached
// classifier artifact behind an atomic pointer: the background refresher is
// the single writer, request goroutines are the readers, and the reference
// is replaced wholesale so an in-flight inference never sees a half-updated
// model. When the classifier is unavailable, mismatched, failing or slow,
// the deterministic cost-model path answers instead.
type Service struct {
	catalog  *plan.Catalog
	registry *registry.Registry
	cfg      Config
	logger   *zap.Logger

	current atomic.Pointer[model.Artifact]
}

// NewService creates a recommendation service. The registry may be polled
// lazily; a nil cached model simply means every request falls back.
func NewService(catalog *plan.Catalog, reg *registry.Registry, cfg Config, logger *zap.Logger) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = defaultInferenceTimeout
	}
	return &Service{catalog: catalog, registry: reg, cfg: cfg, logger: logger}
}

// Run refreshes the cached classifier on the configured interval until the
// context is cancelled. Registry reads happen here, off the request path.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("starting model refresher", zap.Duration("interval", s.cfg.RefreshInterval))

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial model refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("model refresher stopping")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("model refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh fetches the latest promoted artifact and swaps it in if the
// version changed. A registry with no published model is not an error:
// cold starts degrade to fallback.
func (s *Service) Refresh(ctx context.Context) error {
	artifact, err := s.registry.FetchLatest(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrNoModelPublished) {
			s.logger.Debug("no model published yet, serving fallback")
			return nil
		}
		return err
	}

	if prev := s.current.Load(); prev != nil && prev.Version == artifact.Version {
		return nil
	}

	s.current.Store(artifact)
	LoadedModelInfo.Reset()
	LoadedModelInfo.WithLabelValues(artifact.Version).Set(1)
	s.logger.Info("loaded model",
		zap.String("version", artifact.Version),
		zap.Float64("holdout_fidelity", artifact.Metadata.HoldoutFidelity))
	return nil
}

// ModelVersion returns the cached model's version, or empty when serving
// pure fallback.
func (s *Service) ModelVersion() string {
	if a := s.current.Load(); a != nil {
		return a.Version
	}
	return ""
}

// Recommend always produces a prediction: classifier when possible, the
// deterministic cost-model label otherwise. Internal failures are logged
// and resolved by fallback, never surfaced to the caller.
func (s *Service) Recommend(ctx context.Context, features usage.FeatureVector) Prediction {
	artifact := s.current.Load()
	if artifact == nil {
		return s.fallback(features, "", "no_model")
	}

	planID, err := s.infer(ctx, artifact, features)
	if err != nil {
		reason := "inference_error"
		switch {
		case errors.Is(err, model.ErrSchemaMismatch):
			reason = "schema_mismatch"
		case errors.Is(err, ErrPredictionTimeout):
			reason = "timeout"
			s.logger.Warn("inference exceeded timeout, serving fallback",
				zap.Duration("timeout", s.cfg.InferenceTimeout),
				zap.String("model_version", artifact.Version))
		}
		if reason != "timeout" {
			s.logger.Warn("classifier failed, serving fallback",
				zap.Error(err), zap.String("model_version", artifact.Version))
		}
		return s.fallback(features, artifact.Version, reason)
	}

	RecommendationsTotal.WithLabelValues(string(SourceModel)).Inc()
	return s.buildPrediction(features, planID, SourceModel, artifact.Version)
}

// infer runs classifier prediction under the timeout bound. On timeout the
// result is abandoned, not interrupted: the goroutine finishes on its own
// and its result is discarded.
func (s *Service) infer(ctx context.Context, artifact *model.Artifact, features usage.FeatureVector) (plan.ID, error) {
	type result struct {
		id  plan.ID
		err error
	}
	done := make(chan result, 1)

	start := time.Now()
	go func() {
		id, err := artifact.Classifier.Predict(features)
		done <- result{id: id, err: err}
	}()

	timer := time.NewTimer(s.cfg.InferenceTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		InferenceSeconds.Observe(time.Since(start).Seconds())
		return res.id, res.err
	case <-timer.C:
		return "", ErrPredictionTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fallback answers through the deterministic cost-model path. It has no
// external dependency, so it cannot fail while the catalog is loaded.
func (s *Service) fallback(features usage.FeatureVector, modelVersion, reason string) Prediction {
	RecommendationsTotal.WithLabelValues(string(SourceFallback)).Inc()
	FallbackTotal.WithLabelValues(reason).Inc()

	best, err := s.catalog.BestPlan(features.Usage())
	if err != nil {
		// Unreachable with a validated catalog; keep the contract anyway.
		s.logger.Error("fallback labeling failed", zap.Error(err))
		best = s.catalog.Plans()[0].ID
	}
	return s.buildPrediction(features, best, SourceFallback, modelVersion)
}

func (s *Service) buildPrediction(features usage.FeatureVector, id plan.ID, source Source, modelVersion string) Prediction {
	costs := s.catalog.CostBreakdown(features.Usage())

	bill := decimal.Zero
	for _, pc := range costs {
		if pc.Plan == id {
			bill = pc.Cost
			break
		}
	}
	savings := decimal.NewFromFloat(features.Spend).Sub(bill).Round(2)

	p := Prediction{
		Features:         features,
		Plan:             id,
		Source:           source,
		Costs:            costs,
		EstimatedBill:    bill.Round(2),
		EstimatedSavings: savings,
		ModelVersion:     modelVersion,
	}
	p.Reason = Explain(p)
	return p
}
