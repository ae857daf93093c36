// Package rfm computes Recency/Frequency/Monetary profiles from a
// transaction snapshot and assigns population-relative segment labels.
//
// All functions are pure: they read the snapshot once, hold no state, and
// produce deterministic output for a fixed input. Quartiles are recomputed
// from the full profile population on every call, so labels are always
// relative to the current population rather than to a previous run.
package rfm

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/model"
)

// ComputeProfiles groups facts by customer and derives one RfmProfile per
// customer. Facts without a customer id are excluded (anonymous sales are
// not an error). Profiles are returned sorted by customer id.
func ComputeProfiles(facts []model.TransactionFact, referenceTime time.Time) []model.RfmProfile {
	type acc struct {
		country      string
		lastPurchase time.Time
		invoices     map[string]struct{}
		monetary     decimal.Decimal
		quantity     int
	}

	byCustomer := make(map[int]*acc)
	for _, f := range facts {
		if f.CustomerID == nil {
			continue
		}
		a, ok := byCustomer[*f.CustomerID]
		if !ok {
			a = &acc{
				country:  f.Country,
				invoices: make(map[string]struct{}),
				monetary: decimal.Zero,
			}
			byCustomer[*f.CustomerID] = a
		}
		if f.InvoiceDate.After(a.lastPurchase) {
			a.lastPurchase = f.InvoiceDate
		}
		if f.InvoiceNo != "" {
			a.invoices[f.InvoiceNo] = struct{}{}
		}
		a.monetary = a.monetary.Add(f.Amount())
		a.quantity += f.Quantity
	}

	profiles := make([]model.RfmProfile, 0, len(byCustomer))
	for id, a := range byCustomer {
		frequency := len(a.invoices)
		avgOrder := decimal.Zero
		if frequency > 0 {
			avgOrder = a.monetary.Div(decimal.NewFromInt(int64(frequency)))
		}
		profiles = append(profiles, model.RfmProfile{
			CustomerID:    id,
			Country:       a.country,
			RecencyDays:   int(referenceTime.Sub(a.lastPurchase).Hours() / 24),
			Frequency:     frequency,
			Monetary:      a.monetary,
			AvgOrderValue: avgOrder,
			TotalQuantity: a.quantity,
			LastPurchase:  a.lastPurchase,
		})
	}

	// Map iteration order is random; pin the output order.
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].CustomerID < profiles[j].CustomerID
	})

	zap.L().Debug("rfm: computed profiles",
		zap.Int("customers", len(profiles)),
		zap.Time("reference", referenceTime),
	)
	return profiles
}

// quartiles holds the population cut points used by the segment rules.
type quartiles struct {
	r25, r50, r75 float64
	f25, f50, f75 float64
	m75           float64
}

func populationQuartiles(profiles []model.RfmProfile) quartiles {
	recencies := make([]float64, len(profiles))
	frequencies := make([]float64, len(profiles))
	monetaries := make([]float64, len(profiles))
	for i, p := range profiles {
		recencies[i] = float64(p.RecencyDays)
		frequencies[i] = float64(p.Frequency)
		monetaries[i] = p.Monetary.InexactFloat64()
	}
	sort.Float64s(recencies)
	sort.Float64s(frequencies)
	sort.Float64s(monetaries)

	return quartiles{
		r25: percentile(recencies, 25),
		r50: percentile(recencies, 50),
		r75: percentile(recencies, 75),
		f25: percentile(frequencies, 25),
		f50: percentile(frequencies, 50),
		f75: percentile(frequencies, 75),
		m75: percentile(monetaries, 75),
	}
}

// classify applies the segment rules in priority order; first match wins.
func classify(recency, frequency int, monetary float64, q quartiles) model.Segment {
	r, f := float64(recency), float64(frequency)
	switch {
	case r <= q.r25 && f >= q.f75 && monetary >= q.m75:
		return model.SegmentChampions
	case r <= q.r50 && f >= q.f50:
		return model.SegmentLoyal
	case r >= q.r75 && f <= q.f25:
		return model.SegmentAtRisk
	case r >= q.r50 && f <= q.f50:
		return model.SegmentHibernating
	default:
		return model.SegmentRegulars
	}
}

// AssignSegments labels each profile with its quartile-derived segment and
// returns a new annotated slice. The input is not modified.
func AssignSegments(profiles []model.RfmProfile) []model.RfmProfile {
	if len(profiles) == 0 {
		return nil
	}

	q := populationQuartiles(profiles)
	out := make([]model.RfmProfile, len(profiles))
	for i, p := range profiles {
		p.Segment = classify(p.RecencyDays, p.Frequency, p.Monetary.InexactFloat64(), q)
		p.SegmentRank = p.Segment.Rank()
		out[i] = p
	}

	zap.L().Debug("rfm: assigned segments", zap.Int("customers", len(out)))
	return out
}

// Summarize aggregates segmented profiles into one summary per segment
// present, sorted by total value descending.
func Summarize(profiles []model.RfmProfile) []model.SegmentSummary {
	if len(profiles) == 0 {
		return nil
	}

	groups := make(map[model.Segment][]model.RfmProfile)
	for _, p := range profiles {
		groups[p.Segment] = append(groups[p.Segment], p)
	}

	total := len(profiles)
	summaries := make([]model.SegmentSummary, 0, len(groups))
	for seg, members := range groups {
		totalValue := decimal.Zero
		var sumR, sumF, sumM float64
		for _, m := range members {
			totalValue = totalValue.Add(m.Monetary)
			sumR += float64(m.RecencyDays)
			sumF += float64(m.Frequency)
			sumM += m.Monetary.InexactFloat64()
		}
		n := float64(len(members))
		avgR, avgF, avgM := sumR/n, sumF/n, sumM/n

		summaries = append(summaries, model.SegmentSummary{
			SegmentName:       seg,
			CustomerCount:     len(members),
			TotalValue:        totalValue,
			AvgRecency:        avgR,
			AvgFrequency:      avgF,
			AvgMonetary:       avgM,
			PercentageOfTotal: n / float64(total) * 100,
			Description:       describeSegment(seg, avgR, avgF, avgM),
			MarketingActions:  MarketingActions(seg),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		cmp := summaries[i].TotalValue.Cmp(summaries[j].TotalValue)
		if cmp != 0 {
			return cmp > 0
		}
		return summaries[i].SegmentName.Rank() < summaries[j].SegmentName.Rank()
	})
	return summaries
}

// AtRisk returns the profiles in the At-Risk and Hibernating segments,
// highest monetary value first.
func AtRisk(profiles []model.RfmProfile) []model.RfmProfile {
	var out []model.RfmProfile
	for _, p := range profiles {
		if p.Segment == model.SegmentAtRisk || p.Segment == model.SegmentHibernating {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp := out[i].Monetary.Cmp(out[j].Monetary)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// Overview summarizes a raw fact snapshot for report headers.
func Overview(facts []model.TransactionFact) model.OverviewStats {
	stats := model.OverviewStats{TotalRevenue: decimal.Zero}
	invoices := make(map[string]struct{})
	customers := make(map[int]struct{})
	products := make(map[string]struct{})

	for _, f := range facts {
		stats.TotalRevenue = stats.TotalRevenue.Add(f.Amount())
		if f.InvoiceNo != "" {
			invoices[f.InvoiceNo] = struct{}{}
		}
		if f.CustomerID != nil {
			customers[*f.CustomerID] = struct{}{}
		}
		if f.StockCode != "" {
			products[f.StockCode] = struct{}{}
		}
		if stats.FirstInvoice.IsZero() || f.InvoiceDate.Before(stats.FirstInvoice) {
			stats.FirstInvoice = f.InvoiceDate
		}
		if f.InvoiceDate.After(stats.LastInvoice) {
			stats.LastInvoice = f.InvoiceDate
		}
	}

	stats.TotalInvoices = len(invoices)
	stats.TotalCustomers = len(customers)
	stats.TotalProducts = len(products)
	return stats
}
