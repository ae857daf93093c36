package api

import (
	"time"

	"github.com/g5/dss-engine/internal/model"
)

type segmentationRequest struct {
	Country       string     `json:"country,omitempty"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// segmentationResult is the completed-job payload for an analyze run.
type segmentationResult struct {
	TotalCustomers int                    `json:"total_customers"`
	ReferenceTime  time.Time              `json:"reference_time"`
	Summaries      []model.SegmentSummary `json:"summaries"`
	AtRisk         []model.RfmProfile     `json:"at_risk"`
}

type rulesRequest struct {
	Country       string  `json:"country,omitempty"`
	Segment       string  `json:"segment,omitempty"`
	MinSupport    float64 `json:"min_support,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	MaxRules      int     `json:"max_rules,omitempty"`
}

type rulesResult struct {
	RuleCount int                     `json:"rule_count"`
	Rules     []model.AssociationRule `json:"rules"`
}

type recommendationsRequest struct {
	StockCode     string  `json:"stock_code"`
	TopN          int     `json:"top_n,omitempty"`
	MinSupport    float64 `json:"min_support,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

type optimizeRequest struct {
	Orders []model.Order     `json:"orders"`
	Costs  *model.CostParams `json:"costs,omitempty"`
}

type simulateRequest struct {
	Orders    []model.Order     `json:"orders"`
	Threshold float64           `json:"threshold"`
	Costs     *model.CostParams `json:"costs,omitempty"`
}

type assessRequest struct {
	Order     model.Order       `json:"order"`
	Threshold *float64          `json:"threshold,omitempty"`
	Costs     *model.CostParams `json:"costs,omitempty"`
}

type jobAccepted struct {
	JobID string         `json:"job_id"`
	State model.JobState `json:"state"`
}

type statsResponse struct {
	FactCount int64               `json:"fact_count"`
	Overview  model.OverviewStats `json:"overview"`
}

type errorResponse struct {
	Error string `json:"error"`
}
