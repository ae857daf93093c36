package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/g5/dss-engine/internal/basket"
	"github.com/g5/dss-engine/internal/config"
	"github.com/g5/dss-engine/internal/jobs"
	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/policy"
	"github.com/g5/dss-engine/internal/rfm"
	"github.com/g5/dss-engine/internal/store"
)

// defaultAssessThreshold is the operating COD cutoff applied when an
// assess request does not pin one.
const defaultAssessThreshold = 75.0

// atRiskLimit caps the at-risk customer list in segmentation results.
const atRiskLimit = 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store   store.Store
	tracker *jobs.Tracker
	basket  config.BasketConfig
	policy  config.PolicyConfig
}

// NewHandler builds a Handler around the store and job tracker.
func NewHandler(st store.Store, tracker *jobs.Tracker, basketCfg config.BasketConfig, policyCfg config.PolicyConfig) *Handler {
	return &Handler{store: st, tracker: tracker, basket: basketCfg, policy: policyCfg}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountFacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	facts, err := h.store.Facts(r.Context(), store.FactFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		FactCount: count,
		Overview:  rfm.Overview(facts),
	})
}

// AnalyzeSegments enqueues an RFM segmentation run over the stored facts.
func (h *Handler) AnalyzeSegments(w http.ResponseWriter, r *http.Request) {
	var req segmentationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	work := func(ctx context.Context, report func(int)) (any, error) {
		facts, err := h.store.Facts(ctx, store.FactFilter{Country: req.Country})
		if err != nil {
			return nil, err
		}
		report(10)

		// default reference point is the end of the snapshot, so recency
		// is measured against the data rather than the wall clock
		ref := rfm.Overview(facts).LastInvoice
		if req.ReferenceTime != nil {
			ref = req.ReferenceTime.UTC()
		}

		profiles := rfm.AssignSegments(rfm.ComputeProfiles(facts, ref))
		report(50)

		if _, err := h.store.UpsertProfiles(ctx, profiles); err != nil {
			return nil, err
		}
		report(90)

		atRisk := rfm.AtRisk(profiles)
		if len(atRisk) > atRiskLimit {
			atRisk = atRisk[:atRiskLimit]
		}
		return segmentationResult{
			TotalCustomers: len(profiles),
			ReferenceTime:  ref,
			Summaries:      rfm.Summarize(profiles),
			AtRisk:         atRisk,
		}, nil
	}

	h.submit(w, model.DomainSegmentation, work)
}

// MineRules enqueues an association-rule mining run.
func (h *Handler) MineRules(w http.ResponseWriter, r *http.Request) {
	var req rulesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := basket.Options{
		MinSupport:    req.MinSupport,
		MinConfidence: req.MinConfidence,
		MaxRules:      req.MaxRules,
	}
	if opts.MinSupport == 0 {
		opts.MinSupport = h.basket.MinSupport
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = h.basket.MinConfidence
	}
	if opts.MaxRules == 0 {
		opts.MaxRules = h.basket.MaxRules
	}

	work := func(ctx context.Context, report func(int)) (any, error) {
		facts, err := h.store.Facts(ctx, store.FactFilter{Country: req.Country})
		if err != nil {
			return nil, err
		}
		report(10)

		mineOpts := opts
		if req.Segment != "" {
			customers, err := h.segmentCustomers(ctx, model.Segment(req.Segment))
			if err != nil {
				return nil, err
			}
			mineOpts.Customers = customers
		}
		report(50)

		rules, err := basket.NewMiner(facts).FindRules(mineOpts)
		if err != nil {
			return nil, err
		}
		report(90)

		return rulesResult{RuleCount: len(rules), Rules: rules}, nil
	}

	h.submit(w, model.DomainRules, work)
}

// Recommend enqueues a cross-sell lookup for one product.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StockCode == "" {
		writeError(w, http.StatusBadRequest, "stock_code is required")
		return
	}
	topN := req.TopN
	if topN == 0 {
		topN = 5
	}

	work := func(ctx context.Context, report func(int)) (any, error) {
		facts, err := h.store.Facts(ctx, store.FactFilter{})
		if err != nil {
			return nil, err
		}
		report(10)

		opts := basket.Options{
			MinSupport:    req.MinSupport,
			MinConfidence: req.MinConfidence,
		}
		rules, err := basket.NewMiner(facts).RecommendFor(req.StockCode, opts, topN)
		if err != nil {
			return nil, err
		}
		report(90)

		return rulesResult{RuleCount: len(rules), Rules: rules}, nil
	}

	h.submit(w, model.DomainRules, work)
}

// OptimizeThreshold enqueues a profit-curve sweep over the posted orders.
func (h *Handler) OptimizeThreshold(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "orders are required")
		return
	}

	opt, err := policy.NewOptimizer(nil, h.costParams(req.Costs))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	work := func(ctx context.Context, report func(int)) (any, error) {
		report(10)
		res, err := opt.OptimizeThreshold(req.Orders)
		if err != nil {
			return nil, err
		}
		report(90)
		return res, nil
	}

	h.submit(w, model.DomainPolicy, work)
}

// SimulateThreshold answers synchronously: a single-threshold evaluation
// is too cheap to be worth a job round trip.
func (h *Handler) SimulateThreshold(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "orders are required")
		return
	}

	opt, err := policy.NewOptimizer(nil, h.costParams(req.Costs))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := opt.Simulate(req.Orders, req.Threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AssessOrder scores one order synchronously.
func (h *Handler) AssessOrder(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Order.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order.order_id is required")
		return
	}

	threshold := defaultAssessThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	opt, err := policy.NewOptimizer(nil, h.costParams(req.Costs))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := opt.Assess(req.Order, threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	state := model.JobState(r.URL.Query().Get("state"))
	list := h.tracker.List(state)
	if list == nil {
		list = []model.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.tracker.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.tracker.Get(id); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	cancelled := h.tracker.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *Handler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.State.Terminal() {
		writeError(w, http.StatusConflict, "job is still active")
		return
	}
	h.tracker.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.tracker.ClearTerminal()})
}

// submit enqueues work and answers 202, or 429 when the domain queue is at
// capacity.
func (h *Handler) submit(w http.ResponseWriter, domain model.JobDomain, work jobs.Work) {
	id, err := h.tracker.Submit(domain, work)
	if err != nil {
		if eris.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "queue full, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: id, State: model.JobPending})
}

// segmentCustomers resolves a segment name to the customer ids of the
// latest stored profile snapshot.
func (h *Handler) segmentCustomers(ctx context.Context, segment model.Segment) (map[int]struct{}, error) {
	profiles, err := h.store.Profiles(ctx, segment)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, eris.Errorf("no stored profiles for segment %q, run segmentation first", segment)
	}
	out := make(map[int]struct{}, len(profiles))
	for _, p := range profiles {
		out[p.CustomerID] = struct{}{}
	}
	return out, nil
}

func (h *Handler) costParams(override *model.CostParams) model.CostParams {
	if override != nil {
		return *override
	}
	return h.policy.CostParams()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
