// Package policy finds the cash-on-delivery risk threshold that maximizes
// expected profit over a set of pending orders.
//
// The sweep is exhaustive over integer thresholds 0..100: with at most 101
// candidate points, closed-form optimization buys nothing and the full
// profit curve falls out for free. Scores below the threshold are approved
// for COD, scores at or above it are not.
package policy

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/model"
)

const (
	sweepMin  = 0.0
	sweepMax  = 100.0
	sweepStep = 1.0

	// sensitivityOffset is how far on either side of the optimum the
	// profit curve is probed for the stability note.
	sensitivityOffset = 5.0

	// sensitivityTolerance is the relative profit drop within the probe
	// window below which the optimum is called robust.
	sensitivityTolerance = 0.05
)

// Optimizer sweeps COD approval thresholds against a cost model.
type Optimizer struct {
	scorer Scorer
	costs  model.CostParams
}

// NewOptimizer builds an optimizer with the given scorer and cost model.
// A nil scorer falls back to the deterministic heuristic.
func NewOptimizer(scorer Scorer, costs model.CostParams) (*Optimizer, error) {
	if err := validateCosts(costs); err != nil {
		return nil, err
	}
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Optimizer{scorer: scorer, costs: costs}, nil
}

func validateCosts(c model.CostParams) error {
	if c.CogsRatio < 0 || c.CogsRatio >= 1 {
		return eris.Errorf("policy: cogs ratio %v outside [0,1)", c.CogsRatio)
	}
	if c.ConversionRateImpact < 0 || c.ConversionRateImpact > 1 {
		return eris.Errorf("policy: conversion rate impact %v outside [0,1]", c.ConversionRateImpact)
	}
	if c.ReturnProcessingCost < 0 {
		return eris.Errorf("policy: negative return processing cost %v", c.ReturnProcessingCost)
	}
	if c.ShippingCost < 0 {
		return eris.Errorf("policy: negative shipping cost %v", c.ShippingCost)
	}
	if c.PrepayBoundary < sweepMin || c.PrepayBoundary > sweepMax {
		return eris.Errorf("policy: prepay boundary %v outside [0,100]", c.PrepayBoundary)
	}
	return nil
}

// scoredOrder caches per-order quantities so the threshold sweep does not
// recompute them 101 times.
type scoredOrder struct {
	score          float64
	profitApproved float64
	profitBlocked  float64
	orderValue     float64
}

func (o *Optimizer) scoreOrders(orders []model.Order) []scoredOrder {
	out := make([]scoredOrder, len(orders))
	for i, ord := range orders {
		out[i] = scoredOrder{
			score:          o.scorer.Score(ord),
			profitApproved: o.profitIfApproved(ord),
			profitBlocked:  o.profitIfBlocked(ord),
			orderValue:     ord.OrderValue,
		}
	}
	return out
}

// profitIfApproved is the margin less shipping, discounted by the expected
// cost of processing a return at the blended return rate.
func (o *Optimizer) profitIfApproved(ord model.Order) float64 {
	margin := ord.OrderValue * (1 - o.costs.CogsRatio)
	return margin - o.costs.ShippingCost - BlendedReturnRate(ord)*o.costs.ReturnProcessingCost
}

// profitIfBlocked assumes the customer is pushed to prepayment: a fraction
// of conversions is lost, but the return-risk cost disappears.
func (o *Optimizer) profitIfBlocked(ord model.Order) float64 {
	retained := 1 - o.costs.ConversionRateImpact
	margin := ord.OrderValue * (1 - o.costs.CogsRatio)
	return margin*retained - o.costs.ShippingCost*retained
}

// evalThreshold folds the scored orders at one threshold. Impacted orders
// are the ones denied COD.
func evalThreshold(scored []scoredOrder, threshold float64) model.ThresholdPoint {
	pt := model.ThresholdPoint{Threshold: threshold}
	for _, s := range scored {
		if s.score < threshold {
			pt.Profit += s.profitApproved
		} else {
			pt.Profit += s.profitBlocked
			pt.OrdersImpacted++
			pt.RevenueImpacted += s.orderValue
		}
	}
	return pt
}

// OptimizeThreshold sweeps thresholds 0..100 and returns the profit curve,
// the profit-maximizing threshold (smallest on ties), the derived policy
// bands and a note on how flat the curve is around the optimum.
func (o *Optimizer) OptimizeThreshold(orders []model.Order) (*model.OptimalThresholdResult, error) {
	if len(orders) == 0 {
		return nil, eris.New("policy: no orders to optimize over")
	}

	scored := o.scoreOrders(orders)

	curve := make([]model.ThresholdPoint, 0, int((sweepMax-sweepMin)/sweepStep)+1)
	bestIdx := 0
	for t := sweepMin; t <= sweepMax; t += sweepStep {
		pt := evalThreshold(scored, t)
		curve = append(curve, pt)
		if pt.Profit > curve[bestIdx].Profit {
			bestIdx = len(curve) - 1
		}
	}

	best := curve[bestIdx]
	// The gain is measured against approving every order, the policy a
	// shop without gatekeeping already runs.
	var baseline float64
	for _, s := range scored {
		baseline += s.profitApproved
	}

	res := &model.OptimalThresholdResult{
		BestThreshold:        best.Threshold,
		MaxExpectedProfit:    best.Profit,
		ProfitGainVsBaseline: best.Profit - baseline,
		PolicyRules:          o.policyRules(best.Threshold),
		SensitivityNote:      sensitivityNote(curve, bestIdx),
		Curve:                curve,
	}

	zap.L().Debug("policy: threshold sweep complete",
		zap.Int("orders", len(orders)),
		zap.Float64("best_threshold", res.BestThreshold),
		zap.Float64("max_profit", res.MaxExpectedProfit),
	)
	return res, nil
}

// policyRules translates the optimal threshold into action bands. The
// prepay boundary never exceeds the optimum; when they coincide the prepay
// band is empty and dropped.
func (o *Optimizer) policyRules(best float64) []model.PolicyRule {
	boundary := o.costs.PrepayBoundary
	if boundary > best {
		boundary = best
	}

	rules := []model.PolicyRule{{
		ScoreRange:  fmt.Sprintf("%.0f-%.0f", sweepMin, boundary),
		Action:      model.ActionApprove,
		Description: "Low predicted refusal risk, COD margin beats the prepay conversion loss",
	}}
	if boundary < best {
		rules = append(rules, model.PolicyRule{
			ScoreRange:  fmt.Sprintf("%.0f-%.0f", boundary, best),
			Action:      model.ActionRequirePrepay,
			Description: "Moderate refusal risk, keep the sale but shift the risk to prepayment",
		})
	}
	rules = append(rules, model.PolicyRule{
		ScoreRange:  fmt.Sprintf("%.0f-%.0f", best, sweepMax),
		Action:      model.ActionBlockCOD,
		Description: "Expected return costs exceed the margin, COD not offered",
	})
	return rules
}

func sensitivityNote(curve []model.ThresholdPoint, bestIdx int) string {
	best := curve[bestIdx].Profit

	offset := int(sensitivityOffset / sweepStep)
	lo, hi := bestIdx-offset, bestIdx+offset
	if lo < 0 {
		lo = 0
	}
	if hi > len(curve)-1 {
		hi = len(curve) - 1
	}

	worst := best
	if curve[lo].Profit < worst {
		worst = curve[lo].Profit
	}
	if curve[hi].Profit < worst {
		worst = curve[hi].Profit
	}

	drop := best - worst
	scale := best
	if scale < 0 {
		scale = -scale
	}
	if scale == 0 || drop/scale <= sensitivityTolerance {
		return fmt.Sprintf("robust: expected profit stays within %.0f%% of the optimum across +/-%.0f threshold points",
			sensitivityTolerance*100, sensitivityOffset)
	}
	return fmt.Sprintf("sensitive: expected profit drops %.2f within +/-%.0f threshold points of the optimum, re-tune after distribution shifts",
		drop, sensitivityOffset)
}

// Simulate evaluates a single fixed threshold. Impacted orders are the ones
// the threshold would deny COD.
func (o *Optimizer) Simulate(orders []model.Order, threshold float64) (*model.SimulationResult, error) {
	if len(orders) == 0 {
		return nil, eris.New("policy: no orders to simulate over")
	}
	if threshold < sweepMin || threshold > sweepMax {
		return nil, eris.Errorf("policy: threshold %v outside [0,100]", threshold)
	}

	pt := evalThreshold(o.scoreOrders(orders), threshold)

	return &model.SimulationResult{
		Threshold:           threshold,
		TotalExpectedProfit: pt.Profit,
		TotalOrders:         len(orders),
		OrdersImpacted:      pt.OrdersImpacted,
		OrdersImpactedPct:   float64(pt.OrdersImpacted) / float64(len(orders)) * 100,
		RevenueAtRisk:       pt.RevenueImpacted,
	}, nil
}

// Risk level bands over the 0..100 score.
const (
	mediumRiskFloor = 40.0
	highRiskFloor   = 70.0
)

// Assess scores one order against an operating threshold and explains the
// resulting action.
func (o *Optimizer) Assess(ord model.Order, threshold float64) (*model.RiskAssessment, error) {
	if threshold < sweepMin || threshold > sweepMax {
		return nil, eris.Errorf("policy: threshold %v outside [0,100]", threshold)
	}

	score := o.scorer.Score(ord)

	level := "LOW"
	switch {
	case score >= highRiskFloor:
		level = "HIGH"
	case score >= mediumRiskFloor:
		level = "MEDIUM"
	}

	boundary := o.costs.PrepayBoundary
	if boundary > threshold {
		boundary = threshold
	}

	var action, reason string
	switch {
	case score < boundary:
		action = model.ActionApprove
		reason = fmt.Sprintf("score %.1f is below the prepay boundary %.1f", score, boundary)
	case score < threshold:
		action = model.ActionRequirePrepay
		reason = fmt.Sprintf("score %.1f is between the prepay boundary %.1f and the COD cutoff %.1f", score, boundary, threshold)
	default:
		action = model.ActionBlockCOD
		reason = fmt.Sprintf("score %.1f is at or above the COD cutoff %.1f", score, threshold)
	}

	approved := o.profitIfApproved(ord)
	blocked := o.profitIfBlocked(ord)

	return &model.RiskAssessment{
		OrderID:                  ord.OrderID,
		RiskScore:                score,
		RiskLevel:                level,
		RecommendedAction:        action,
		ActionReason:             reason,
		ExpectedProfitIfApproved: approved,
		ExpectedProfitIfBlocked:  blocked,
		ProfitDifference:         approved - blocked,
		ThresholdUsed:            threshold,
	}, nil
}

// AssessBatch scores a batch and returns assessments sorted by risk score
// descending so the riskiest orders surface first.
func (o *Optimizer) AssessBatch(orders []model.Order, threshold float64) ([]model.RiskAssessment, error) {
	out := make([]model.RiskAssessment, 0, len(orders))
	for _, ord := range orders {
		a, err := o.Assess(ord, threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out, nil
}
