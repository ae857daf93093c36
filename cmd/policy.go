package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/policy"
)

var (
	policyOrdersPath string
	policyThreshold  float64
	policyShowCurve  bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "COD gatekeeping policy tools",
	Long:  "Sweeps, simulates, and applies risk-score thresholds for cash-on-delivery order gatekeeping.",
}

// -- policy optimize --

var policyOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Find the profit-maximizing risk threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		orders, err := readOrders(policyOrdersPath)
		if err != nil {
			return err
		}

		opt, err := policy.NewOptimizer(nil, cfg.Policy.CostParams())
		if err != nil {
			return err
		}
		res, err := opt.OptimizeThreshold(orders)
		if err != nil {
			return eris.Wrap(err, "optimize threshold")
		}

		fmt.Fprintf(os.Stdout, "Best threshold: %.0f\n", res.BestThreshold)
		fmt.Fprintf(os.Stdout, "Max expected profit: %s\n", money.Sprintf("%.2f", res.MaxExpectedProfit))
		fmt.Fprintf(os.Stdout, "Gain vs approving everything: %s\n", money.Sprintf("%.2f", res.ProfitGainVsBaseline))
		fmt.Fprintf(os.Stdout, "Sensitivity: %s\n\n", res.SensitivityNote)

		formatPolicyRules(os.Stdout, res.PolicyRules)

		if policyShowCurve {
			fmt.Fprintln(os.Stdout)
			formatCurve(os.Stdout, res.Curve)
		}
		return nil
	},
}

// -- policy simulate --

var policySimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a fixed threshold against an order population",
	RunE: func(cmd *cobra.Command, _ []string) error {
		orders, err := readOrders(policyOrdersPath)
		if err != nil {
			return err
		}

		opt, err := policy.NewOptimizer(nil, cfg.Policy.CostParams())
		if err != nil {
			return err
		}
		res, err := opt.Simulate(orders, policyThreshold)
		if err != nil {
			return eris.Wrap(err, "simulate threshold")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// -- policy assess --

var policyAssessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Score and gate each order of a population",
	RunE: func(cmd *cobra.Command, _ []string) error {
		orders, err := readOrders(policyOrdersPath)
		if err != nil {
			return err
		}

		opt, err := policy.NewOptimizer(nil, cfg.Policy.CostParams())
		if err != nil {
			return err
		}
		assessments, err := opt.AssessBatch(orders, policyThreshold)
		if err != nil {
			return eris.Wrap(err, "assess orders")
		}

		formatAssessments(os.Stdout, assessments)
		return nil
	},
}

// readOrders loads an order population from a JSON array file.
func readOrders(path string) ([]model.Order, error) {
	if path == "" {
		return nil, eris.New("--orders is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open orders file")
	}
	defer f.Close() //nolint:errcheck

	var orders []model.Order
	if err := json.NewDecoder(f).Decode(&orders); err != nil {
		return nil, eris.Wrap(err, "decode orders file")
	}
	if len(orders) == 0 {
		return nil, eris.New("orders file is empty")
	}
	return orders, nil
}

func formatPolicyRules(out io.Writer, rules []model.PolicyRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE_RANGE\tACTION\tDESCRIPTION")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ScoreRange, r.Action, r.Description)
	}
	_ = w.Flush()
}

func formatCurve(out io.Writer, curve []model.ThresholdPoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THRESHOLD\tPROFIT\tORDERS_IMPACTED\tREVENUE_IMPACTED")
	for _, p := range curve {
		fmt.Fprintf(w, "%.0f\t%.2f\t%d\t%.2f\n",
			p.Threshold, p.Profit, p.OrdersImpacted, p.RevenueImpacted)
	}
	_ = w.Flush()
}

func formatAssessments(out io.Writer, assessments []model.RiskAssessment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tSCORE\tLEVEL\tACTION\tPROFIT_IF_APPROVED\tPROFIT_IF_BLOCKED\tREASON")
	for _, a := range assessments {
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%.2f\t%.2f\t%s\n",
			a.OrderID,
			a.RiskScore,
			a.RiskLevel,
			a.RecommendedAction,
			a.ExpectedProfitIfApproved,
			a.ExpectedProfitIfBlocked,
			a.ActionReason,
		)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{policyOptimizeCmd, policySimulateCmd, policyAssessCmd} {
		c.Flags().StringVar(&policyOrdersPath, "orders", "", "path to JSON order population (required)")
	}
	policySimulateCmd.Flags().Float64Var(&policyThreshold, "threshold", 75, "risk threshold to evaluate")
	policyAssessCmd.Flags().Float64Var(&policyThreshold, "threshold", 75, "risk threshold to gate with")
	policyOptimizeCmd.Flags().BoolVar(&policyShowCurve, "curve", false, "print the full profit curve")

	policyCmd.AddCommand(policyOptimizeCmd)
	policyCmd.AddCommand(policySimulateCmd)
	policyCmd.AddCommand(policyAssessCmd)
	rootCmd.AddCommand(policyCmd)
}
