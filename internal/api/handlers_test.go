package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g5/dss-engine/internal/config"
	"github.com/g5/dss-engine/internal/jobs"
	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/store"
)

func newTestServer(t *testing.T, facts []model.TransactionFact) *httptest.Server {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	if len(facts) > 0 {
		_, err = st.InsertFacts(context.Background(), facts)
		require.NoError(t, err)
	}

	tracker := jobs.NewTracker(map[model.JobDomain]jobs.PoolConfig{
		model.DomainSegmentation: {Workers: 1, QueueDepth: 4},
		model.DomainRules:        {Workers: 1, QueueDepth: 4},
		model.DomainPolicy:       {Workers: 1, QueueDepth: 4},
	})

	h := NewHandler(st, tracker,
		config.BasketConfig{MinSupport: 0.01, MinConfidence: 30, MaxRules: 100},
		config.PolicyConfig{
			ReturnProcessingCost: 15,
			ShippingCost:         5,
			CogsRatio:            0.6,
			ConversionRateImpact: 0.2,
			PrepayBoundary:       50,
		})

	srv := httptest.NewServer(NewRouter(h, config.ServerConfig{AllowedOrigins: []string{"*"}}))
	t.Cleanup(func() {
		srv.Close()
		tracker.Close()
		st.Close()
	})
	return srv
}

func intPtr(v int) *int { return &v }

// apiFixtureFacts holds two invoices per customer across two products so
// segmentation, mining, and recommendations all have something to chew on.
func apiFixtureFacts() []model.TransactionFact {
	base := time.Date(2011, 11, 1, 10, 0, 0, 0, time.UTC)
	price := decimal.NewFromFloat(2.50)

	var facts []model.TransactionFact
	for customer := 1; customer <= 4; customer++ {
		for i := 0; i < 2; i++ {
			for _, code := range []string{"A1", "B2"} {
				facts = append(facts, model.TransactionFact{
					InvoiceNo:   "5" + string(rune('0'+customer)) + string(rune('0'+i)) + "00",
					StockCode:   code,
					Description: "PRODUCT " + code,
					Quantity:    2,
					UnitPrice:   price,
					CustomerID:  intPtr(customer),
					Country:     "United Kingdom",
					InvoiceDate: base.AddDate(0, 0, customer*3+i),
				})
			}
		}
	}
	return facts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// waitForJob polls the job endpoint until the job reaches a terminal state.
func waitForJob(t *testing.T, baseURL, id string) model.Job {
	t.Helper()
	var job model.Job
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/api/v1/jobs/" + id)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		job = decodeBody[model.Job](t, resp)
		return job.State.Terminal()
	}, 3*time.Second, 10*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeBody[statsResponse](t, resp)
	assert.Equal(t, int64(16), stats.FactCount)
	assert.Equal(t, 4, stats.Overview.TotalCustomers)
	assert.Equal(t, 2, stats.Overview.TotalProducts)
}

func TestAnalyzeSegments_CompletesWithResult(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/segmentation/analyze", segmentationRequest{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[jobAccepted](t, resp)
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, model.JobPending, accepted.State)

	job := waitForJob(t, srv.URL, accepted.JobID)
	require.Equal(t, model.JobCompleted, job.State)
	assert.Equal(t, 100, job.Progress)

	// result travels as JSON through the job record
	raw, err := json.Marshal(job.Result)
	require.NoError(t, err)
	var result segmentationResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 4, result.TotalCustomers)
	assert.NotEmpty(t, result.Summaries)
}

func TestMineRules_CompletesWithRules(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/basket/rules", rulesRequest{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[jobAccepted](t, resp)
	job := waitForJob(t, srv.URL, accepted.JobID)
	require.Equal(t, model.JobCompleted, job.State)

	raw, err := json.Marshal(job.Result)
	require.NoError(t, err)
	var result rulesResult
	require.NoError(t, json.Unmarshal(raw, &result))

	// every invoice holds both products, so both directed rules appear at
	// confidence 100
	require.Equal(t, 2, result.RuleCount)
	for _, rule := range result.Rules {
		assert.InDelta(t, 100.0, rule.Confidence, 1e-9)
	}
}

func TestMineRules_UnknownSegmentFails(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/basket/rules", rulesRequest{Segment: "Champions"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[jobAccepted](t, resp)
	job := waitForJob(t, srv.URL, accepted.JobID)

	// no profile snapshot stored yet
	require.Equal(t, model.JobFailed, job.State)
	assert.Contains(t, job.Error, "run segmentation first")
}

func TestMineRules_SegmentFilterAfterAnalyze(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/segmentation/analyze", segmentationRequest{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeBody[jobAccepted](t, resp)
	seg := waitForJob(t, srv.URL, accepted.JobID)
	require.Equal(t, model.JobCompleted, seg.State)

	raw, err := json.Marshal(seg.Result)
	require.NoError(t, err)
	var segResult segmentationResult
	require.NoError(t, json.Unmarshal(raw, &segResult))
	require.NotEmpty(t, segResult.Summaries)
	segment := string(segResult.Summaries[0].SegmentName)

	resp = postJSON(t, srv.URL+"/api/v1/basket/rules", rulesRequest{Segment: segment})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted = decodeBody[jobAccepted](t, resp)
	job := waitForJob(t, srv.URL, accepted.JobID)
	assert.Equal(t, model.JobCompleted, job.State)
}

func TestRecommend_RequiresStockCode(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/basket/recommendations", recommendationsRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Contains(t, body.Error, "stock_code")
}

func TestRecommend_ReturnsRulesForProduct(t *testing.T) {
	srv := newTestServer(t, apiFixtureFacts())

	resp := postJSON(t, srv.URL+"/api/v1/basket/recommendations", recommendationsRequest{StockCode: "A1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[jobAccepted](t, resp)
	job := waitForJob(t, srv.URL, accepted.JobID)
	require.Equal(t, model.JobCompleted, job.State)

	raw, err := json.Marshal(job.Result)
	require.NoError(t, err)
	var result rulesResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, 1, result.RuleCount)
	assert.Equal(t, "A1", result.Rules[0].ProductACode)
	assert.Equal(t, "B2", result.Rules[0].ProductBCode)
}

func sampleAPIOrders() []model.Order {
	return []model.Order{
		{OrderID: "O1", OrderValue: 100, CustomerReturnRate: 0.05, SKUReturnRate: 0.05},
		{OrderID: "O2", OrderValue: 200, CustomerReturnRate: 0.25, SKUReturnRate: 0.35},
		{OrderID: "O3", OrderValue: 50, CustomerReturnRate: 0.6, SKUReturnRate: 0.5, FirstTimeCustomer: true},
	}
}

func TestOptimizeThreshold_Job(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/optimize", optimizeRequest{Orders: sampleAPIOrders()})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[jobAccepted](t, resp)
	job := waitForJob(t, srv.URL, accepted.JobID)
	require.Equal(t, model.JobCompleted, job.State)

	raw, err := json.Marshal(job.Result)
	require.NoError(t, err)
	var result model.OptimalThresholdResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 61.0, result.BestThreshold)
	assert.InDelta(t, 116.75, result.MaxExpectedProfit, 1e-9)
	assert.Len(t, result.Curve, 101)
}

func TestOptimizeThreshold_EmptyOrders(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/optimize", optimizeRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimulateThreshold_Sync(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/simulate", simulateRequest{
		Orders:    sampleAPIOrders(),
		Threshold: 61,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[model.SimulationResult](t, resp)
	assert.Equal(t, 61.0, result.Threshold)
	assert.InDelta(t, 116.75, result.TotalExpectedProfit, 1e-9)
	assert.Equal(t, 1, result.OrdersImpacted)
	assert.InDelta(t, 50.0, result.RevenueAtRisk, 1e-9)
}

func TestSimulateThreshold_BadThreshold(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/simulate", simulateRequest{
		Orders:    sampleAPIOrders(),
		Threshold: 150,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssessOrder_DefaultThreshold(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/assess", assessRequest{
		Order: model.Order{OrderID: "O1", OrderValue: 100, CustomerReturnRate: 0.05, SKUReturnRate: 0.05},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[model.RiskAssessment](t, resp)
	assert.Equal(t, "O1", res.OrderID)
	assert.InDelta(t, 10.0, res.RiskScore, 1e-9)
	assert.Equal(t, "LOW", res.RiskLevel)
	assert.Equal(t, model.ActionApprove, res.RecommendedAction)
	assert.Equal(t, defaultAssessThreshold, res.ThresholdUsed)
}

func TestAssessOrder_PinnedThreshold(t *testing.T) {
	srv := newTestServer(t, nil)

	threshold := 5.0
	resp := postJSON(t, srv.URL+"/api/v1/policy/assess", assessRequest{
		Order:     model.Order{OrderID: "O1", OrderValue: 100, CustomerReturnRate: 0.05, SKUReturnRate: 0.05},
		Threshold: &threshold,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[model.RiskAssessment](t, resp)
	assert.Equal(t, 5.0, res.ThresholdUsed)
	assert.NotEqual(t, model.ActionApprove, res.RecommendedAction)
}

func TestAssessOrder_MissingID(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/assess", assessRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/policy/assess", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/policy/optimize", optimizeRequest{Orders: sampleAPIOrders()})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeBody[jobAccepted](t, resp)
	waitForJob(t, srv.URL, accepted.JobID)

	// list
	listResp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	list := decodeBody[[]model.Job](t, listResp)
	require.Len(t, list, 1)
	assert.Equal(t, accepted.JobID, list[0].ID)

	// state filter that matches nothing
	listResp, err = http.Get(srv.URL + "/api/v1/jobs?state=processing")
	require.NoError(t, err)
	assert.Len(t, decodeBody[[]model.Job](t, listResp), 0)

	// remove the completed job
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/"+accepted.JobID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	// gone now
	getResp, err := http.Get(srv.URL + "/api/v1/jobs/" + accepted.JobID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()
}

func TestJobEndpoints_UnknownID(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/jobs/no-such-job")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/jobs/no-such-job/cancel", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestClearJobs(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/policy/optimize", optimizeRequest{Orders: sampleAPIOrders()})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		accepted := decodeBody[jobAccepted](t, resp)
		waitForJob(t, srv.URL, accepted.JobID)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 2, body["removed"])
}

func TestRateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "rate_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	tracker := jobs.NewTracker(map[model.JobDomain]jobs.PoolConfig{
		model.DomainPolicy: {Workers: 1, QueueDepth: 1},
	})
	h := NewHandler(st, tracker, config.BasketConfig{}, config.PolicyConfig{CogsRatio: 0.6})

	srv := httptest.NewServer(NewRouter(h, config.ServerConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	}))
	t.Cleanup(func() {
		srv.Close()
		tracker.Close()
		st.Close()
	})

	// burst of one: the second immediate request must be rejected
	first, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	first.Body.Close()

	second, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	second.Body.Close()
}
