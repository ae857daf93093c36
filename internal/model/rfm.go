package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Segment is an RFM customer segment label.
type Segment string

const (
	SegmentChampions   Segment = "Champions"
	SegmentLoyal       Segment = "Loyal"
	SegmentAtRisk      Segment = "At-Risk"
	SegmentHibernating Segment = "Hibernating"
	SegmentRegulars    Segment = "Regulars"
)

// segmentRanks orders segments for stable display: most valuable first.
var segmentRanks = map[Segment]int{
	SegmentChampions:   0,
	SegmentLoyal:       1,
	SegmentAtRisk:      2,
	SegmentHibernating: 3,
	SegmentRegulars:    4,
}

// Rank returns the display rank of the segment. Unknown segments sort last.
func (s Segment) Rank() int {
	if r, ok := segmentRanks[s]; ok {
		return r
	}
	return len(segmentRanks)
}

// RfmProfile holds the Recency/Frequency/Monetary metrics for one customer,
// computed from a snapshot of facts against a reference time. Profiles are
// recomputed from facts on every run; the store keeps only the latest
// snapshot for lookup.
type RfmProfile struct {
	CustomerID    int             `json:"customer_id"`
	Country       string          `json:"country"`
	RecencyDays   int             `json:"recency_days"`
	Frequency     int             `json:"frequency"` // distinct invoice count, >= 1
	Monetary      decimal.Decimal `json:"monetary"`  // >= 0
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	TotalQuantity int             `json:"total_quantity"`
	LastPurchase  time.Time       `json:"last_purchase"`
	Segment       Segment         `json:"segment,omitempty"`
	SegmentRank   int             `json:"segment_rank"`
}

// SegmentSummary aggregates the profiles of one segment.
type SegmentSummary struct {
	SegmentName       Segment         `json:"segment_name"`
	CustomerCount     int             `json:"customer_count"`
	TotalValue        decimal.Decimal `json:"total_value"`
	AvgRecency        float64         `json:"avg_recency"`
	AvgFrequency      float64         `json:"avg_frequency"`
	AvgMonetary       float64         `json:"avg_monetary"`
	PercentageOfTotal float64         `json:"percentage_of_total"`
	Description       string          `json:"description"`
	MarketingActions  []string        `json:"marketing_actions"`
}
