// Package pipeline runs the offline training path: read usage events for
// the aggregation window, fold them into feature vectors, label them with
// the cost model, fit a classifier, and publish it through the registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tariffwise/tariffwise/pkg/model"
	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/registry"
	"github.com/tariffwise/tariffwise/pkg/store"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// ErrRunInProgress means another training run holds the lease.
var ErrRunInProgress = errors.New("training run already in progress")

// trainingLease is the lease name serializing training runs.
const trainingLease = "training"

// Config parameterizes the training trigger.
type Config struct {
	WindowDays      int
	MinCustomers    int
	Seed            int64
	RetrainInterval time.Duration
	LeaseTTL        time.Duration
}

const (
	defaultWindowDays      = 30
	defaultMinCustomers    = 25
	defaultRetrainInterval = 6 * time.Hour
	defaultLeaseTTL        = 10 * time.Minute
)

// Pipeline owns one training flow end to end. Multiple pipelines (or
// overlapping scheduled runs) coordinate through the lease store, so the
// registry only ever sees one publisher per run.
type Pipeline struct {
	events   store.EventStore
	leases   store.LeaseStore
	catalog  *plan.Catalog
	trainer  *model.Trainer
	registry *registry.Registry
	cfg      Config
	logger   *zap.Logger
	runnerID string
}

// New wires a pipeline. leases may be the SQLite store or the Redis one.
func New(events store.EventStore, leases store.LeaseStore, catalog *plan.Catalog, reg *registry.Registry, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = defaultWindowDays
	}
	if cfg.MinCustomers <= 0 {
		cfg.MinCustomers = defaultMinCustomers
	}
	if cfg.RetrainInterval <= 0 {
		cfg.RetrainInterval = defaultRetrainInterval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	trainer := model.NewTrainer(catalog, model.TrainerConfig{
		MinCustomers: cfg.MinCustomers,
		Seed:         cfg.Seed,
	})
	return &Pipeline{
		events:   events,
		leases:   leases,
		catalog:  catalog,
		trainer:  trainer,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		runnerID: uuid.NewString(),
	}
}

// Run retrains on the configured interval until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("starting training scheduler",
		zap.Duration("interval", p.cfg.RetrainInterval),
		zap.Int("window_days", p.cfg.WindowDays))

	ticker := time.NewTicker(p.cfg.RetrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("training scheduler stopping")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				switch {
				case errors.Is(err, model.ErrInsufficientData):
					p.logger.Warn("training skipped", zap.Error(err))
				case errors.Is(err, ErrRunInProgress):
					p.logger.Info("training already running elsewhere")
				default:
					p.logger.Error("training run failed", zap.Error(err))
				}
			}
		}
	}
}

// RunOnce executes a single lease-guarded training run and returns the
// published version. On ErrInsufficientData nothing is published and the
// prior latest pointer is untouched.
func (p *Pipeline) RunOnce(ctx context.Context) (string, error) {
	acquired, err := p.leases.Acquire(ctx, trainingLease, p.runnerID, p.cfg.LeaseTTL)
	if err != nil {
		TrainingRunsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to acquire training lease: %w", err)
	}
	if !acquired {
		TrainingRunsTotal.WithLabelValues("skipped").Inc()
		return "", ErrRunInProgress
	}
	defer func() {
		if err := p.leases.Release(context.WithoutCancel(ctx), trainingLease, p.runnerID); err != nil {
			p.logger.Warn("failed to release training lease", zap.Error(err))
		}
	}()

	version, err := p.train(ctx)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			TrainingRunsTotal.WithLabelValues("insufficient_data").Inc()
		} else {
			TrainingRunsTotal.WithLabelValues("error").Inc()
		}
		return "", err
	}

	TrainingRunsTotal.WithLabelValues("published").Inc()
	LastTrainingTimestamp.SetToCurrentTime()
	return version, nil
}

func (p *Pipeline) train(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -p.cfg.WindowDays)

	events, err := p.events.ReadEventsSince(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to read events: %w", err)
	}

	vectors := usage.Aggregate(events, now, p.cfg.WindowDays)

	// Map iteration order is random; sort by customer so a fixed seed
	// reproduces the exact same fit.
	ids := make([]int64, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	examples := make([]model.Example, 0, len(vectors))
	for _, id := range ids {
		v := vectors[id]
		label, err := p.catalog.BestPlan(v.Usage())
		if err != nil {
			return "", fmt.Errorf("failed to label customer %d: %w", v.CustomerID, err)
		}
		examples = append(examples, model.Example{Features: v, Label: label})
	}

	artifact, err := p.trainer.Train(ctx, examples)
	if err != nil {
		return "", err
	}
	artifact.Metadata.WindowDays = p.cfg.WindowDays

	version, err := p.registry.PublishAndPromote(ctx, artifact)
	if err != nil {
		return "", fmt.Errorf("failed to publish model: %w", err)
	}

	HoldoutFidelity.Set(artifact.Metadata.HoldoutFidelity)
	p.logger.Info("published model",
		zap.String("version", version),
		zap.Int("customers", len(examples)),
		zap.Int("events", len(events)),
		zap.Float64("holdout_fidelity", artifact.Metadata.HoldoutFidelity))
	return version, nil
}
