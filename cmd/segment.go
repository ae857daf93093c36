package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/rfm"
	"github.com/g5/dss-engine/internal/store"
)

var (
	segmentCountry   string
	segmentReference string
	segmentAtRiskTop int
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Run RFM segmentation over the stored transactions",
	Long:  "Computes Recency/Frequency/Monetary profiles, assigns quartile-based segments, refreshes the stored profile snapshot, and prints a per-segment summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.Facts(ctx, store.FactFilter{Country: segmentCountry})
		if err != nil {
			return eris.Wrap(err, "load facts")
		}
		if len(facts) == 0 {
			return eris.New("no transactions in store, run ingest first")
		}

		ref := rfm.Overview(facts).LastInvoice
		if segmentReference != "" {
			ref, err = time.Parse("2006-01-02", segmentReference)
			if err != nil {
				return eris.Wrap(err, "parse reference date")
			}
		}

		profiles := rfm.AssignSegments(rfm.ComputeProfiles(facts, ref))
		if _, err := st.UpsertProfiles(ctx, profiles); err != nil {
			return eris.Wrap(err, "store profile snapshot")
		}

		zap.L().Info("segmentation complete",
			zap.Int("customers", len(profiles)),
			zap.Time("reference", ref),
		)

		formatSegmentSummaries(os.Stdout, rfm.Summarize(profiles))

		atRisk := rfm.AtRisk(profiles)
		if len(atRisk) > segmentAtRiskTop {
			atRisk = atRisk[:segmentAtRiskTop]
		}
		if len(atRisk) > 0 {
			fmt.Fprintln(os.Stdout)
			formatAtRisk(os.Stdout, atRisk)
		}
		return nil
	},
}

// money formats large currency figures with thousands separators.
var money = message.NewPrinter(language.English)

func formatSegmentSummaries(out io.Writer, summaries []model.SegmentSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tCUSTOMERS\tPCT\tTOTAL_VALUE\tAVG_RECENCY\tAVG_FREQ\tAVG_MONETARY")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%s\t%.0f\t%.1f\t%s\n",
			s.SegmentName,
			s.CustomerCount,
			s.PercentageOfTotal,
			money.Sprintf("%.2f", s.TotalValue.InexactFloat64()),
			s.AvgRecency,
			s.AvgFrequency,
			money.Sprintf("%.2f", s.AvgMonetary),
		)
	}
	_ = w.Flush()
}

func formatAtRisk(out io.Writer, profiles []model.RfmProfile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT-RISK CUSTOMER\tSEGMENT\tRECENCY_DAYS\tFREQUENCY\tMONETARY")
	for _, p := range profiles {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
			p.CustomerID,
			p.Segment,
			p.RecencyDays,
			p.Frequency,
			money.Sprintf("%.2f", p.Monetary.InexactFloat64()),
		)
	}
	_ = w.Flush()
}

func init() {
	segmentCmd.Flags().StringVar(&segmentCountry, "country", "", "restrict to one country")
	segmentCmd.Flags().StringVar(&segmentReference, "reference", "", "reference date for recency (YYYY-MM-DD, default: latest invoice)")
	segmentCmd.Flags().IntVar(&segmentAtRiskTop, "at-risk-top", 20, "max at-risk customers to display")
	rootCmd.AddCommand(segmentCmd)
}
