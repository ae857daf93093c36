package model

// Order is one unit of the population the policy optimizer sweeps over.
// Return rates are fractions in [0,1]; the risk score itself comes from an
// injected scoring capability, not from this struct.
type Order struct {
	OrderID            string  `json:"order_id"`
	CustomerID         string  `json:"customer_id"`
	StockCode          string  `json:"stock_code"`
	OrderValue         float64 `json:"order_value"`
	CustomerReturnRate float64 `json:"customer_return_rate"`
	SKUReturnRate      float64 `json:"sku_return_rate"`
	FirstTimeCustomer  bool    `json:"is_first_time_customer"`
}

// CostParams holds the economics of the gatekeeping decision.
type CostParams struct {
	ReturnProcessingCost float64 `json:"return_processing_cost"`
	ShippingCost         float64 `json:"shipping_cost"`
	CogsRatio            float64 `json:"cogs_ratio"`              // [0,1]
	ConversionRateImpact float64 `json:"conversion_rate_impact"`  // [0,1]
	PrepayBoundary       float64 `json:"prepay_boundary"`         // lower edge of the REQUIRE_PREPAY band
}

// ThresholdPoint is one sample of the profit curve.
type ThresholdPoint struct {
	Threshold       float64 `json:"threshold"`
	Profit          float64 `json:"profit"`
	OrdersImpacted  int     `json:"orders_impacted"`
	RevenueImpacted float64 `json:"revenue_impacted"`
}

// PolicyRule maps a score range to an order-handling action.
type PolicyRule struct {
	ScoreRange  string `json:"score_range"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Gatekeeping actions.
const (
	ActionApprove       = "APPROVE"
	ActionRequirePrepay = "REQUIRE_PREPAY"
	ActionBlockCOD      = "BLOCK_COD"
)

// OptimalThresholdResult is the immutable outcome of one optimizer run.
type OptimalThresholdResult struct {
	BestThreshold        float64          `json:"best_threshold"`
	MaxExpectedProfit    float64          `json:"max_expected_profit"`
	ProfitGainVsBaseline float64          `json:"profit_gain_vs_baseline"`
	PolicyRules          []PolicyRule     `json:"policy_rules"`
	SensitivityNote      string           `json:"sensitivity_note"`
	Curve                []ThresholdPoint `json:"profit_curve"`
}

// SimulationResult is the outcome of evaluating one fixed threshold.
type SimulationResult struct {
	Threshold           float64 `json:"threshold"`
	TotalExpectedProfit float64 `json:"total_expected_profit"`
	TotalOrders         int     `json:"total_orders"`
	OrdersImpacted      int     `json:"orders_impacted"`
	OrdersImpactedPct   float64 `json:"orders_impacted_pct"`
	RevenueAtRisk       float64 `json:"revenue_at_risk"`
}

// RiskAssessment is the synchronous single-order gatekeeping verdict.
type RiskAssessment struct {
	OrderID                  string  `json:"order_id"`
	RiskScore                float64 `json:"risk_score"`
	RiskLevel                string  `json:"risk_level"` // LOW, MEDIUM, HIGH
	RecommendedAction        string  `json:"recommended_action"`
	ActionReason             string  `json:"action_reason"`
	ExpectedProfitIfApproved float64 `json:"expected_profit_if_approved"`
	ExpectedProfitIfBlocked  float64 `json:"expected_profit_if_blocked"`
	ProfitDifference         float64 `json:"profit_difference"`
	ThresholdUsed            float64 `json:"threshold_used"`
}
