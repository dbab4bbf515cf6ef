package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tariffwise/tariffwise/pkg/model"
	"github.com/tariffwise/tariffwise/pkg/pipeline"
	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/recommend"
	"github.com/tariffwise/tariffwise/pkg/store"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// fakeEventStore keeps events in memory.
type fakeEventStore struct {
	events []usage.Event
	err    error
}

func (f *fakeEventStore) AppendEvent(ctx context.Context, e usage.Event) error {
	if f.err != nil {
		return f.err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventStore) AppendEvents(ctx context.Context, events []usage.Event) error {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := f.AppendEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEventStore) ReadEventsSince(ctx context.Context, from time.Time) ([]usage.Event, error) {
	return f.QueryEvents(ctx, store.EventFilter{From: from})
}

func (f *fakeEventStore) QueryEvents(ctx context.Context, filter store.EventFilter) ([]usage.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []usage.Event
	for _, e := range f.events {
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if filter.CustomerID != 0 && e.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEventStore) CountDistinctCustomers(ctx context.Context, from time.Time) (int, error) {
	seen := map[int64]struct{}{}
	for _, e := range f.events {
		if !e.Timestamp.Before(from) {
			seen[e.CustomerID] = struct{}{}
		}
	}
	return len(seen), nil
}

// fakeRecommender answers deterministically: savings are spend minus 400.
type fakeRecommender struct {
	version string
}

func (f *fakeRecommender) Recommend(ctx context.Context, v usage.FeatureVector) recommend.Prediction {
	return recommend.Prediction{
		Features:         v,
		Plan:             plan.Basic,
		Source:           recommend.SourceFallback,
		EstimatedBill:    decimal.NewFromInt(400),
		EstimatedSavings: decimal.NewFromFloat(v.Spend - 400),
		Reason:           "test",
		ModelVersion:     f.version,
	}
}

func (f *fakeRecommender) ModelVersion() string { return f.version }

type fakeTrainer struct {
	version string
	err     error
}

func (f *fakeTrainer) RunOnce(ctx context.Context) (string, error) { return f.version, f.err }

type fakeRegistry struct {
	versions []string
	latest   string
	err      error
}

func (f *fakeRegistry) ListVersions(ctx context.Context) ([]string, error) {
	return f.versions, f.err
}

func (f *fakeRegistry) LatestVersion(ctx context.Context) (string, error) {
	return f.latest, f.err
}

func newTestServer(events store.EventStore, rec Recommender, trainer TrainRunner, reg RegistryReader) *Server {
	return NewServer(events, rec, trainer, reg, 30, ":0", zap.NewNop())
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

func seedFakeEvents(f *fakeEventStore, customers int, now time.Time) {
	for id := int64(1); id <= int64(customers); id++ {
		f.events = append(f.events, usage.Event{
			CustomerID:  id,
			Timestamp:   now.AddDate(0, 0, -1),
			DataGB:      float64(id),
			Minutes:     100,
			SMS:         10,
			Region:      usage.Regions()[id%int64(len(usage.Regions()))],
			CurrentPlan: plan.Basic,
			Spend:       float64(300 + id*50), // customer 1 upsell, 2 break-even, rest savings
		})
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{version: "v1"}, nil, nil)

	w := doRequest(s, "GET", "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.ModelVersion != "v1" {
		t.Errorf("unexpected health payload: %+v", resp)
	}
}

func TestHandleRecommend(t *testing.T) {
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, nil)

	body, _ := json.Marshal(RecommendRequest{
		CustomerID: 1, AvgDataGB: 3, AvgMinutes: 150, AvgSMS: 20,
		Region: "delhi", CurrentPlan: "standard", Spend: 499,
	})
	w := doRequest(s, "POST", "/v1/recommend", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", w.Code, w.Body.String())
	}

	var pred recommend.Prediction
	if err := json.Unmarshal(w.Body.Bytes(), &pred); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pred.Plan != plan.Basic {
		t.Errorf("plan %s, want basic", pred.Plan)
	}
	if pred.Features.WindowDays != 30 {
		t.Errorf("window days %d, want 30", pred.Features.WindowDays)
	}
}

func TestHandleRecommend_BadRequests(t *testing.T) {
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"unknown region", `{"region":"gotham","avg_data_gb":1}`},
		{"negative usage", `{"region":"delhi","avg_data_gb":-1}`},
	}
	for _, tc := range cases {
		w := doRequest(s, "POST", "/v1/recommend", []byte(tc.body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", tc.name, w.Code)
		}
	}
}

func TestHandleRecommendCustomer(t *testing.T) {
	events := &fakeEventStore{}
	seedFakeEvents(events, 3, time.Now().UTC())
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	w := doRequest(s, "GET", "/v1/recommend/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", w.Code, w.Body.String())
	}
	var pred recommend.Prediction
	if err := json.Unmarshal(w.Body.Bytes(), &pred); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pred.Features.CustomerID != 2 {
		t.Errorf("customer %d, want 2", pred.Features.CustomerID)
	}
	if pred.Features.EventCount != 1 {
		t.Errorf("event count %d, want 1", pred.Features.EventCount)
	}
}

func TestHandleRecommendCustomer_Errors(t *testing.T) {
	events := &fakeEventStore{}
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	if w := doRequest(s, "GET", "/v1/recommend/0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("zero id: status %d, want 400", w.Code)
	}
	if w := doRequest(s, "GET", "/v1/recommend/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status %d, want 400", w.Code)
	}
	if w := doRequest(s, "GET", "/v1/recommend/99", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown customer: status %d, want 404", w.Code)
	}

	events.err = errors.New("disk gone")
	if w := doRequest(s, "GET", "/v1/recommend/1", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("storage error: status %d, want 503", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	events := &fakeEventStore{}
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	batch := IngestRequest{Events: []usage.Event{
		{CustomerID: 1, Timestamp: time.Now(), DataGB: 1, Minutes: 10, SMS: 1, Region: usage.RegionDelhi, CurrentPlan: plan.Basic, Spend: 199},
		{CustomerID: 2, Timestamp: time.Now(), DataGB: 2, Minutes: 20, SMS: 2, Region: usage.RegionPune, CurrentPlan: plan.Standard, Spend: 499},
	}}
	body, _ := json.Marshal(batch)

	w := doRequest(s, "POST", "/v1/events", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Accepted != 2 {
		t.Errorf("accepted %d, want 2", resp.Accepted)
	}
	if len(events.events) != 2 {
		t.Errorf("stored %d events, want 2", len(events.events))
	}
}

func TestHandleIngest_BadRequests(t *testing.T) {
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, nil)

	if w := doRequest(s, "POST", "/v1/events", []byte(`{"events":[]}`)); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status %d, want 400", w.Code)
	}

	invalid, _ := json.Marshal(IngestRequest{Events: []usage.Event{{CustomerID: -1}}})
	if w := doRequest(s, "POST", "/v1/events", invalid); w.Code != http.StatusBadRequest {
		t.Errorf("invalid event: status %d, want 400", w.Code)
	}
}

func TestHandleCustomers(t *testing.T) {
	events := &fakeEventStore{}
	seedFakeEvents(events, 5, time.Now().UTC())
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	w := doRequest(s, "GET", "/v1/customers?limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp CustomersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("total %d, want 5", resp.Total)
	}
	if len(resp.Customers) != 3 {
		t.Fatalf("returned %d customers, want 3", len(resp.Customers))
	}
	for i := 1; i < len(resp.Customers); i++ {
		if resp.Customers[i-1].CustomerID >= resp.Customers[i].CustomerID {
			t.Error("customers not sorted by id")
		}
	}
}

func TestHandleTopSavings(t *testing.T) {
	events := &fakeEventStore{}
	seedFakeEvents(events, 5, time.Now().UTC()) // spends 350..550, savings -50..150
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	w := doRequest(s, "GET", "/v1/top_savings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp OpportunitiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Spends run 350..550, so customers 3, 4 and 5 have positive savings.
	if resp.Total != 3 {
		t.Fatalf("total %d, want 3: %+v", resp.Total, resp)
	}
	for i := 1; i < len(resp.Results); i++ {
		prev := resp.Results[i-1].Prediction.EstimatedSavings
		cur := resp.Results[i].Prediction.EstimatedSavings
		if prev.Cmp(cur) < 0 {
			t.Error("savings not sorted descending")
		}
	}
	for _, row := range resp.Results {
		if !row.Prediction.EstimatedSavings.IsPositive() {
			t.Errorf("non-positive savings in top_savings: %+v", row)
		}
	}
}

func TestHandleTopUpsell(t *testing.T) {
	events := &fakeEventStore{}
	seedFakeEvents(events, 5, time.Now().UTC())
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	w := doRequest(s, "GET", "/v1/top_upsell", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp OpportunitiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("total %d, want 1: %+v", resp.Total, resp)
	}
	if !resp.Results[0].Prediction.EstimatedSavings.IsNegative() {
		t.Errorf("upsell row has non-negative savings: %+v", resp.Results[0])
	}
}

func TestHandleSummaryStats(t *testing.T) {
	events := &fakeEventStore{}
	seedFakeEvents(events, 5, time.Now().UTC())
	s := newTestServer(events, &fakeRecommender{}, nil, nil)

	w := doRequest(s, "GET", "/v1/summary_stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp SummaryStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Region != "all" {
		t.Errorf("region %q, want all", resp.Region)
	}
	if resp.TotalCustomers != 5 {
		t.Errorf("total customers %d, want 5", resp.TotalCustomers)
	}
	// Spends are 350..550 in steps of 50: total 2250, avg 450.
	if !resp.TotalCurrentSpend.Equal(decimal.NewFromInt(2250)) {
		t.Errorf("total spend %s, want 2250", resp.TotalCurrentSpend)
	}
	if !resp.AvgMonthlySpend.Equal(decimal.NewFromInt(450)) {
		t.Errorf("avg spend %s, want 450", resp.AvgMonthlySpend)
	}
	if resp.Savings.Count != 3 || resp.Upsell.Count != 1 {
		t.Errorf("opportunity counts savings=%d upsell=%d, want 3/1", resp.Savings.Count, resp.Upsell.Count)
	}
	if resp.Upsell.Total.IsNegative() {
		t.Error("upsell total should be reported as a positive magnitude")
	}
}

func TestHandleModels(t *testing.T) {
	reg := &fakeRegistry{versions: []string{"a", "b"}, latest: "b"}
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{version: "b"}, nil, reg)

	w := doRequest(s, "GET", "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}

	var resp ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Versions) != 2 || resp.Latest != "b" || resp.Loaded != "b" {
		t.Errorf("unexpected models payload: %+v", resp)
	}
}

func TestHandleModels_Unavailable(t *testing.T) {
	s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, &fakeRegistry{err: errors.New("blob down")})

	if w := doRequest(s, "GET", "/v1/models", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}

	s = newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, nil)
	if w := doRequest(s, "GET", "/v1/models", nil); w.Code != http.StatusNotFound {
		t.Errorf("nil registry: status %d, want 404", w.Code)
	}
}

func TestHandleTrain(t *testing.T) {
	cases := []struct {
		name    string
		trainer *fakeTrainer
		want    int
	}{
		{"success", &fakeTrainer{version: "v9"}, http.StatusOK},
		{"insufficient data", &fakeTrainer{err: fmt.Errorf("wrap: %w", model.ErrInsufficientData)}, http.StatusUnprocessableEntity},
		{"in progress", &fakeTrainer{err: pipeline.ErrRunInProgress}, http.StatusConflict},
		{"internal", &fakeTrainer{err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, tc.trainer, nil)
		w := doRequest(s, "POST", "/v1/train", nil)
		if w.Code != tc.want {
			t.Errorf("%s: status %d, want %d", tc.name, w.Code, tc.want)
		}
		if tc.want == http.StatusOK {
			var resp TrainResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Version != "v9" {
				t.Errorf("version %q, want v9", resp.Version)
			}
		}
	}

	s := newTestServer(&fakeEventStore{}, &fakeRecommender{}, nil, nil)
	if w := doRequest(s, "POST", "/v1/train", nil); w.Code != http.StatusNotFound {
		t.Errorf("nil trainer: status %d, want 404", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	w := httptest.NewRecorder()
	withRecovery(panicky).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", w.Code)
	}
}
