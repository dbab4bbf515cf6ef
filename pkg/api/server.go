package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tariffwise/tariffwise/pkg/model"
	"github.com/tariffwise/tariffwise/pkg/pipeline"
	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/recommend"
	"github.com/tariffwise/tariffwise/pkg/registry"
	"github.com/tariffwise/tariffwise/pkg/store"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// Interfaces for dependencies to enable mocking.

// Recommender is the online recommendation entry point.
type Recommender interface {
	Recommend(ctx context.Context, features usage.FeatureVector) recommend.Prediction
	ModelVersion() string
}

// TrainRunner triggers one training run on demand.
type TrainRunner interface {
	RunOnce(ctx context.Context) (string, error)
}

// RegistryReader exposes the read side of the model registry.
type RegistryReader interface {
	ListVersions(ctx context.Context) ([]string, error)
	LatestVersion(ctx context.Context) (string, error)
}

// Server encapsulates the HTTP API server.
type Server struct {
	events      store.EventStore
	recommender Recommender
	trainer     TrainRunner
	registry    RegistryReader
	windowDays  int
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates an API server. trainer and registry may be nil when the
// node serves recommendations only.
func NewServer(events store.EventStore, rec Recommender, trainer TrainRunner, reg RegistryReader, windowDays int, addr string, logger *zap.Logger) *Server {
	s := &Server{
		events:      events,
		recommender: rec,
		trainer:     trainer,
		registry:    reg,
		windowDays:  windowDays,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/recommend", s.handleRecommend)
	mux.HandleFunc("GET /v1/recommend/{customer_id}", s.handleRecommendCustomer)
	mux.HandleFunc("POST /v1/events", s.handleIngest)
	mux.HandleFunc("GET /v1/customers", s.handleCustomers)
	mux.HandleFunc("GET /v1/top_savings", s.handleTopSavings)
	mux.HandleFunc("GET /v1/top_upsell", s.handleTopUpsell)
	mux.HandleFunc("GET /v1/summary_stats", s.handleSummaryStats)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/train", s.handleTrain)
	mux.Handle("/metrics", promhttp.Handler())

	handler := s.withLogging(withRecovery(mux))

	if addr == "" {
		addr = ":8085"
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Start runs the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("api server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		ModelVersion: s.recommender.ModelVersion(),
	})
}

// handleRecommend recommends for a caller-supplied feature vector. The
// endpoint always answers with a plan; degraded paths are tagged fallback
// inside the prediction, never surfaced as errors.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}

	region, err := usage.ParseRegion(req.Region)
	if err != nil {
		http.Error(w, `{"error":"unknown_region"}`, http.StatusBadRequest)
		return
	}
	if req.AvgDataGB < 0 || req.AvgMinutes < 0 || req.AvgSMS < 0 || req.Spend < 0 {
		http.Error(w, `{"error":"negative_usage"}`, http.StatusBadRequest)
		return
	}

	features := usage.FeatureVector{
		CustomerID:  req.CustomerID,
		AvgDataGB:   req.AvgDataGB,
		AvgMinutes:  req.AvgMinutes,
		AvgSMS:      req.AvgSMS,
		Region:      region,
		CurrentPlan: plan.ID(req.CurrentPlan),
		Spend:       req.Spend,
		WindowDays:  s.windowDays,
	}
	writeJSON(w, http.StatusOK, s.recommender.Recommend(r.Context(), features))
}

// handleRecommendCustomer aggregates a customer's stored events on demand
// and recommends from the result.
func (s *Server) handleRecommendCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(r.PathValue("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		http.Error(w, `{"error":"invalid_customer_id"}`, http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	events, err := s.events.QueryEvents(r.Context(), store.EventFilter{
		From:       now.AddDate(0, 0, -s.windowDays),
		CustomerID: customerID,
	})
	if err != nil {
		s.logger.Error("failed to query events", zap.Error(err))
		http.Error(w, `{"error":"storage_unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	vectors := usage.Aggregate(events, now, s.windowDays)
	features, ok := vectors[customerID]
	if !ok {
		http.Error(w, `{"error":"customer_not_found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.recommender.Recommend(r.Context(), features))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		http.Error(w, `{"error":"empty_batch"}`, http.StatusBadRequest)
		return
	}
	if err := s.events.AppendEvents(r.Context(), req.Events); err != nil {
		s.logger.Warn("failed to ingest events", zap.Error(err))
		http.Error(w, `{"error":"invalid_events"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Accepted: len(req.Events)})
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	vectors, ok := s.windowVectors(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 100)
	customers := make([]usage.FeatureVector, 0, len(vectors))
	for _, v := range vectors {
		customers = append(customers, v)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].CustomerID < customers[j].CustomerID })

	total := len(customers)
	if len(customers) > limit {
		customers = customers[:limit]
	}
	writeJSON(w, http.StatusOK, CustomersResponse{Customers: customers, Total: total})
}

func (s *Server) handleTopSavings(w http.ResponseWriter, r *http.Request) {
	s.handleOpportunities(w, r, func(savings decimal.Decimal) bool { return savings.IsPositive() }, true)
}

func (s *Server) handleTopUpsell(w http.ResponseWriter, r *http.Request) {
	s.handleOpportunities(w, r, func(savings decimal.Decimal) bool { return savings.IsNegative() }, false)
}

// handleOpportunities reports customers whose recommended plan changes
// their bill: positive savings for top_savings, negative (upsell) for
// top_upsell, sorted by magnitude.
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request, keep func(decimal.Decimal) bool, descending bool) {
	vectors, ok := s.windowVectors(w, r)
	if !ok {
		return
	}
	regionFilter := r.URL.Query().Get("region")

	results := []CustomerOpportunity{}
	for _, v := range vectors {
		if regionFilter != "" && string(v.Region) != regionFilter {
			continue
		}
		pred := s.recommender.Recommend(r.Context(), v)
		if keep(pred.EstimatedSavings) {
			results = append(results, CustomerOpportunity{
				CustomerID: v.CustomerID,
				Region:     v.Region,
				Prediction: pred,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		cmp := results[i].Prediction.EstimatedSavings.Cmp(results[j].Prediction.EstimatedSavings)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})

	total := len(results)
	limit := queryInt(r, "limit", 10)
	if len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, OpportunitiesResponse{Results: results, Total: total})
}

func (s *Server) handleSummaryStats(w http.ResponseWriter, r *http.Request) {
	vectors, ok := s.windowVectors(w, r)
	if !ok {
		return
	}
	regionFilter := r.URL.Query().Get("region")

	stats := SummaryStatsResponse{
		Region:            regionFilter,
		AvgMonthlySpend:   decimal.Zero,
		TotalCurrentSpend: decimal.Zero,
		Savings:           OpportunityStat{Total: decimal.Zero},
		Upsell:            OpportunityStat{Total: decimal.Zero},
	}
	if regionFilter == "" {
		stats.Region = "all"
	}

	for _, v := range vectors {
		if regionFilter != "" && string(v.Region) != regionFilter {
			continue
		}
		stats.TotalCustomers++
		stats.TotalCurrentSpend = stats.TotalCurrentSpend.Add(decimal.NewFromFloat(v.Spend))

		pred := s.recommender.Recommend(r.Context(), v)
		switch {
		case pred.EstimatedSavings.IsPositive():
			stats.Savings.Count++
			stats.Savings.Total = stats.Savings.Total.Add(pred.EstimatedSavings)
		case pred.EstimatedSavings.IsNegative():
			stats.Upsell.Count++
			stats.Upsell.Total = stats.Upsell.Total.Add(pred.EstimatedSavings.Abs())
		}
	}

	if stats.TotalCustomers > 0 {
		stats.AvgMonthlySpend = stats.TotalCurrentSpend.
			Div(decimal.NewFromInt(int64(stats.TotalCustomers))).Round(2)
	}
	stats.TotalCurrentSpend = stats.TotalCurrentSpend.Round(2)
	stats.Savings.Total = stats.Savings.Total.Round(2)
	stats.Upsell.Total = stats.Upsell.Total.Round(2)

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, `{"error":"registry_not_configured"}`, http.StatusNotFound)
		return
	}
	versions, err := s.registry.ListVersions(r.Context())
	if err != nil {
		s.logger.Error("failed to list versions", zap.Error(err))
		http.Error(w, `{"error":"registry_unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	resp := ModelsResponse{Versions: versions, Loaded: s.recommender.ModelVersion()}
	if latest, err := s.registry.LatestVersion(r.Context()); err == nil {
		resp.Latest = latest
	} else if !errors.Is(err, registry.ErrNoModelPublished) {
		s.logger.Warn("failed to resolve latest version", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if s.trainer == nil {
		http.Error(w, `{"error":"training_not_configured"}`, http.StatusNotFound)
		return
	}
	version, err := s.trainer.RunOnce(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInsufficientData):
			http.Error(w, `{"error":"insufficient_data"}`, http.StatusUnprocessableEntity)
		case errors.Is(err, pipeline.ErrRunInProgress):
			http.Error(w, `{"error":"training_in_progress"}`, http.StatusConflict)
		default:
			s.logger.Error("training run failed", zap.Error(err))
			http.Error(w, `{"error":"training_failed"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, TrainResponse{Version: version})
}

// windowVectors aggregates all stored events in the trailing window.
func (s *Server) windowVectors(w http.ResponseWriter, r *http.Request) (map[int64]usage.FeatureVector, bool) {
	now := time.Now().UTC()
	events, err := s.events.ReadEventsSince(r.Context(), now.AddDate(0, 0, -s.windowDays))
	if err != nil {
		s.logger.Error("failed to read events", zap.Error(err))
		http.Error(w, `{"error":"storage_unavailable"}`, http.StatusServiceUnavailable)
		return nil, false
	}
	return usage.Aggregate(events, now, s.windowDays), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// withLogging logs each request with latency.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// withRecovery converts handler panics into 500s.
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
