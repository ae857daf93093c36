// Package basket mines directional product-pair association rules from the
// invoice structure of a transaction snapshot.
//
// The miner is deliberately bounded: only the 100 most frequent items form
// the candidate set, so the pair scan is quadratic in candidates rather than
// in the whole catalog. Rules among long-tail products are out of reach by
// design. Every call re-scans the snapshot; callers needing interactive
// latency cache results externally.
package basket

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/model"
)

const (
	// candidateLimit bounds the pair scan to the most frequent items.
	candidateLimit = 100

	// nameLimit truncates product display names; longer names keep the
	// first 47 characters plus an ellipsis marker.
	nameLimit = 50

	// Defaults applied by RecommendFor when the caller leaves the
	// corresponding option zero-valued.
	DefaultMinSupport    = 0.01
	DefaultMinConfidence = 30.0
	defaultMineDepth     = 100
)

// Options controls one mining pass.
type Options struct {
	// Customers restricts the invoice index to the given customer ids.
	// Nil or empty means all customers.
	Customers map[int]struct{}

	MinSupport    float64 // [0,1], fraction of invoices
	MinConfidence float64 // [0,100], percent
	MaxRules      int     // > 0
}

func (o Options) validate() error {
	if o.MinSupport < 0 || o.MinSupport > 1 {
		return eris.Errorf("basket: min support %v outside [0,1]", o.MinSupport)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 100 {
		return eris.Errorf("basket: min confidence %v outside [0,100]", o.MinConfidence)
	}
	if o.MaxRules <= 0 {
		return eris.Errorf("basket: max rules must be positive, got %d", o.MaxRules)
	}
	return nil
}

// Miner mines association rules over a fixed snapshot of facts.
type Miner struct {
	facts []model.TransactionFact
}

// NewMiner wraps a transaction snapshot. The snapshot is not copied; the
// caller must not mutate it while the miner is in use.
func NewMiner(facts []model.TransactionFact) *Miner {
	return &Miner{facts: facts}
}

// FindRules computes support, confidence and lift for every ordered pair of
// candidate items and returns the qualifying rules sorted by confidence
// descending, ties broken by lift descending. An empty snapshot yields an
// empty result, not an error.
func (m *Miner) FindRules(opts Options) ([]model.AssociationRule, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	invoices, names := m.buildIndex(opts.Customers)
	if len(invoices) == 0 {
		return nil, nil
	}

	candidates := topItems(invoices)
	itemInvoices := make(map[string]map[string]struct{}, len(candidates))
	for _, code := range candidates {
		itemInvoices[code] = make(map[string]struct{})
	}
	for inv, items := range invoices {
		for code := range items {
			if s, ok := itemInvoices[code]; ok {
				s[inv] = struct{}{}
			}
		}
	}

	total := len(invoices)
	var rules []model.AssociationRule
	for _, codeA := range candidates {
		invA := itemInvoices[codeA]
		for _, codeB := range candidates {
			if codeA == codeB {
				continue
			}
			invB := itemInvoices[codeB]

			countAB := intersectionSize(invA, invB)
			if countAB == 0 {
				continue
			}

			countA, countB := len(invA), len(invB)
			support := float64(countAB) / float64(total)
			confidence := float64(countAB) / float64(countA) * 100
			lift := float64(countAB) * float64(total) / (float64(countA) * float64(countB))

			if support < opts.MinSupport || confidence < opts.MinConfidence {
				continue
			}

			rules = append(rules, model.AssociationRule{
				ProductACode:   codeA,
				ProductAName:   truncateName(displayName(names, codeA)),
				ProductBCode:   codeB,
				ProductBName:   truncateName(displayName(names, codeB)),
				Support:        support,
				Confidence:     confidence,
				Lift:           lift,
				CoOccurrence:   countAB,
				Recommendation: recommendationLabel(confidence, lift),
			})
		}
	}

	// Confidence desc, then lift desc; the final code tie-break keeps the
	// ranking independent of input fact order.
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		if rules[i].Lift != rules[j].Lift {
			return rules[i].Lift > rules[j].Lift
		}
		if rules[i].ProductACode != rules[j].ProductACode {
			return rules[i].ProductACode < rules[j].ProductACode
		}
		return rules[i].ProductBCode < rules[j].ProductBCode
	})

	if len(rules) > opts.MaxRules {
		rules = rules[:opts.MaxRules]
	}

	zap.L().Debug("basket: mining complete",
		zap.Int("invoices", total),
		zap.Int("candidates", len(candidates)),
		zap.Int("rules", len(rules)),
	)
	return rules, nil
}

// RecommendFor returns up to topN rules whose antecedent is stockCode.
// Zero-valued support/confidence options fall back to DefaultMinSupport and
// DefaultMinConfidence; non-zero caller values are honored.
func (m *Miner) RecommendFor(stockCode string, opts Options, topN int) ([]model.AssociationRule, error) {
	if stockCode == "" {
		return nil, eris.New("basket: stock code is required")
	}
	if topN <= 0 {
		return nil, eris.Errorf("basket: topN must be positive, got %d", topN)
	}

	if opts.MinSupport == 0 {
		opts.MinSupport = DefaultMinSupport
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.MaxRules == 0 {
		opts.MaxRules = defaultMineDepth
	}

	all, err := m.FindRules(opts)
	if err != nil {
		return nil, err
	}

	var out []model.AssociationRule
	for _, r := range all {
		if r.ProductACode == stockCode {
			out = append(out, r)
			if len(out) == topN {
				break
			}
		}
	}
	return out, nil
}

// buildIndex returns the invoice -> distinct item set index and the
// stock code -> description lookup, honoring the optional customer filter.
// Facts with a missing invoice number or stock code are skipped.
func (m *Miner) buildIndex(customers map[int]struct{}) (map[string]map[string]struct{}, map[string]string) {
	invoices := make(map[string]map[string]struct{})
	names := make(map[string]string)

	for _, f := range m.facts {
		if f.InvoiceNo == "" || f.StockCode == "" {
			continue
		}
		if len(customers) > 0 {
			if f.CustomerID == nil {
				continue
			}
			if _, ok := customers[*f.CustomerID]; !ok {
				continue
			}
		}

		items, ok := invoices[f.InvoiceNo]
		if !ok {
			items = make(map[string]struct{})
			invoices[f.InvoiceNo] = items
		}
		items[f.StockCode] = struct{}{}

		if _, ok := names[f.StockCode]; !ok && f.Description != "" {
			names[f.StockCode] = f.Description
		}
	}
	return invoices, names
}

// topItems returns the candidateLimit most frequent items by invoice count,
// ties broken by stock code so the candidate set does not depend on input
// order.
func topItems(invoices map[string]map[string]struct{}) []string {
	counts := make(map[string]int)
	for _, items := range invoices {
		for code := range items {
			counts[code]++
		}
	}

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})

	if len(codes) > candidateLimit {
		codes = codes[:candidateLimit]
	}
	return codes
}

func intersectionSize(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func displayName(names map[string]string, code string) string {
	if name, ok := names[code]; ok {
		return name
	}
	return code
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= nameLimit {
		return name
	}
	return string(runes[:nameLimit-3]) + "..."
}

// recommendationLabel maps confidence/lift to a fixed bundle-quality band.
func recommendationLabel(confidence, lift float64) string {
	switch {
	case confidence > 70 && lift > 2.0:
		return "strong bundle"
	case confidence > 60 && lift > 1.5:
		return "good bundle"
	case confidence > 50:
		return "viable bundle"
	default:
		return "weak bundle"
	}
}
