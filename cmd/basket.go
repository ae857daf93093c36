package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/g5/dss-engine/internal/basket"
	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/store"
)

var (
	basketCountry       string
	basketSegment       string
	basketMinSupport    float64
	basketMinConfidence float64
	basketMaxRules      int
	basketTopN          int
	basketSegTopRules   int
)

var basketCmd = &cobra.Command{
	Use:   "basket",
	Short: "Market-basket analysis",
	Long:  "Mines directional product association rules from invoice co-occurrence.",
}

// -- basket rules --

var basketRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Mine association rules from the stored transactions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.Facts(ctx, store.FactFilter{Country: basketCountry})
		if err != nil {
			return eris.Wrap(err, "load facts")
		}

		opts := basketOptions()
		if basketSegment != "" {
			customers, err := segmentCustomerSet(cmd, st, model.Segment(basketSegment))
			if err != nil {
				return err
			}
			opts.Customers = customers
		}

		rules, err := basket.NewMiner(facts).FindRules(opts)
		if err != nil {
			return eris.Wrap(err, "mine rules")
		}
		if len(rules) == 0 {
			fmt.Fprintln(os.Stderr, "No rules met the thresholds.")
			return nil
		}

		formatRules(os.Stdout, rules)
		return nil
	},
}

// -- basket recommend --

var basketRecommendCmd = &cobra.Command{
	Use:   "recommend <stock-code>",
	Short: "Cross-sell recommendations for one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.Facts(ctx, store.FactFilter{Country: basketCountry})
		if err != nil {
			return eris.Wrap(err, "load facts")
		}

		rules, err := basket.NewMiner(facts).RecommendFor(args[0], basketOptions(), basketTopN)
		if err != nil {
			return eris.Wrap(err, "recommend")
		}
		if len(rules) == 0 {
			fmt.Fprintf(os.Stderr, "No recommendations for %s.\n", args[0])
			return nil
		}

		formatRules(os.Stdout, rules)
		return nil
	},
}

// -- basket segments --

var basketSegmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Mine rules per customer segment concurrently",
	Long:  "Runs one mining pass per segment of the stored profile snapshot and prints each segment's top rules.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.Facts(ctx, store.FactFilter{Country: basketCountry})
		if err != nil {
			return eris.Wrap(err, "load facts")
		}

		profiles, err := st.Profiles(ctx, "")
		if err != nil {
			return eris.Wrap(err, "load profile snapshot")
		}
		if len(profiles) == 0 {
			return eris.New("no stored profiles, run segment first")
		}

		bySegment := make(map[model.Segment]map[int]struct{})
		for _, p := range profiles {
			set, ok := bySegment[p.Segment]
			if !ok {
				set = make(map[int]struct{})
				bySegment[p.Segment] = set
			}
			set[p.CustomerID] = struct{}{}
		}

		miner := basket.NewMiner(facts)
		results := make(map[model.Segment][]model.AssociationRule, len(bySegment))
		var mu sync.Mutex

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(3)
		for seg, customers := range bySegment {
			opts := basketOptions()
			opts.MaxRules = basketSegTopRules
			opts.Customers = customers
			g.Go(func() error {
				rules, err := miner.FindRules(opts)
				if err != nil {
					return eris.Wrapf(err, "mine segment %s", seg)
				}
				mu.Lock()
				results[seg] = rules
				mu.Unlock()
				zap.L().Debug("segment mined",
					zap.String("segment", string(seg)),
					zap.Int("rules", len(rules)),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		segments := make([]model.Segment, 0, len(results))
		for seg := range results {
			segments = append(segments, seg)
		}
		sort.Slice(segments, func(i, j int) bool { return segments[i].Rank() < segments[j].Rank() })

		for _, seg := range segments {
			fmt.Fprintf(os.Stdout, "== %s (%d rules) ==\n", seg, len(results[seg]))
			if len(results[seg]) > 0 {
				formatRules(os.Stdout, results[seg])
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

func basketOptions() basket.Options {
	opts := basket.Options{
		MinSupport:    basketMinSupport,
		MinConfidence: basketMinConfidence,
		MaxRules:      basketMaxRules,
	}
	if opts.MinSupport == 0 {
		opts.MinSupport = cfg.Basket.MinSupport
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = cfg.Basket.MinConfidence
	}
	if opts.MaxRules == 0 {
		opts.MaxRules = cfg.Basket.MaxRules
	}
	return opts
}

// segmentCustomerSet resolves a segment to customer ids from the stored
// profile snapshot.
func segmentCustomerSet(cmd *cobra.Command, st store.Store, segment model.Segment) (map[int]struct{}, error) {
	profiles, err := st.Profiles(cmd.Context(), segment)
	if err != nil {
		return nil, eris.Wrap(err, "load profile snapshot")
	}
	if len(profiles) == 0 {
		return nil, eris.Errorf("no stored profiles for segment %q, run segment first", segment)
	}
	set := make(map[int]struct{}, len(profiles))
	for _, p := range profiles {
		set[p.CustomerID] = struct{}{}
	}
	return set, nil
}

func formatRules(out io.Writer, rules []model.AssociationRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IF BOUGHT\tTHEN BUYS\tSUPPORT\tCONFIDENCE\tLIFT\tCO_OCC\tRECOMMENDATION")
	for _, r := range rules {
		fmt.Fprintf(w, "%s %s\t%s %s\t%.4f\t%.1f%%\t%.2f\t%d\t%s\n",
			r.ProductACode, r.ProductAName,
			r.ProductBCode, r.ProductBName,
			r.Support,
			r.Confidence,
			r.Lift,
			r.CoOccurrence,
			r.Recommendation,
		)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{basketRulesCmd, basketRecommendCmd, basketSegmentsCmd} {
		c.Flags().StringVar(&basketCountry, "country", "", "restrict to one country")
		c.Flags().Float64Var(&basketMinSupport, "min-support", 0, "minimum support (default from config)")
		c.Flags().Float64Var(&basketMinConfidence, "min-confidence", 0, "minimum confidence percent (default from config)")
	}
	basketRulesCmd.Flags().StringVar(&basketSegment, "segment", "", "restrict to customers of one segment")
	basketRulesCmd.Flags().IntVar(&basketMaxRules, "max-rules", 0, "max rules to return (default from config)")
	basketSegmentsCmd.Flags().IntVar(&basketSegTopRules, "max-rules", 10, "max rules per segment")
	basketRecommendCmd.Flags().IntVar(&basketTopN, "top", 5, "max recommendations")

	basketCmd.AddCommand(basketRulesCmd)
	basketCmd.AddCommand(basketRecommendCmd)
	basketCmd.AddCommand(basketSegmentsCmd)
	rootCmd.AddCommand(basketCmd)
}
