package model

// AssociationRule is a directional product-pair rule (A -> B is distinct
// from B -> A) mined from the invoice index.
type AssociationRule struct {
	ProductACode string `json:"product_a_code"`
	ProductAName string `json:"product_a_name"`
	ProductBCode string `json:"product_b_code"`
	ProductBName string `json:"product_b_name"`

	Support      float64 `json:"support"`       // fraction of invoices containing both, [0,1]
	Confidence   float64 `json:"confidence"`    // P(B|A) in percent, [0,100]
	Lift         float64 `json:"lift"`          // observed / expected co-occurrence, >= 0
	CoOccurrence int     `json:"co_occurrence"` // invoices containing both, >= 1

	Recommendation string `json:"recommendation"`
}
