package rfm

import (
	"fmt"

	"github.com/g5/dss-engine/internal/model"
)

// marketingActions are the canned campaign suggestions per segment. They are
// static lookup tables, not computed.
var marketingActions = map[model.Segment][]string{
	model.SegmentChampions: {
		"VIP perks and early access",
		"Referral program invitations",
		"Exclusive gifts",
	},
	model.SegmentLoyal: {
		"Loyalty points and product upsells",
		"Birthday offers",
		"Cross-sell premium items",
	},
	model.SegmentAtRisk: {
		"'We miss you' email with 15% discount code",
		"Discounted reactivation bundle",
		"Feedback survey",
	},
	model.SegmentHibernating: {
		"Remarketing campaign",
		"Reduced shipping fees",
		"Exclusive flash sale",
	},
	model.SegmentRegulars: {
		"Periodic promotions",
		"Cross-sell complementary products",
		"Quality newsletter",
	},
}

// MarketingActions returns the canned action list for a segment.
func MarketingActions(s model.Segment) []string {
	return marketingActions[s]
}

// describeSegment renders the fixed description template for a segment with
// the segment's average metrics.
func describeSegment(s model.Segment, avgRecency, avgFrequency, avgMonetary float64) string {
	switch s {
	case model.SegmentChampions:
		return fmt.Sprintf("Top-value customers: they buy often (%.1f orders each), spend heavily (%.0f) and purchased again only %.0f days ago.",
			avgFrequency, avgMonetary, avgRecency)
	case model.SegmentLoyal:
		return fmt.Sprintf("Reliable repeat customers with solid frequency (%.1f orders) and steady spend (%.0f). Recency: %.0f days.",
			avgFrequency, avgMonetary, avgRecency)
	case model.SegmentAtRisk:
		return fmt.Sprintf("High churn risk: no purchase for %.0f days and low frequency (%.1f orders). Needs immediate attention.",
			avgRecency, avgFrequency)
	case model.SegmentHibernating:
		return fmt.Sprintf("Dormant customers: inactive for %.0f days with low frequency (%.1f orders).",
			avgRecency, avgFrequency)
	default:
		return fmt.Sprintf("Steady mid-tier customers. Recency: %.0f days, frequency: %.1f orders, spend: %.0f.",
			avgRecency, avgFrequency, avgMonetary)
	}
}
