package policy

import "github.com/g5/dss-engine/internal/model"

// Scorer assigns a cash-on-delivery risk score in [0,100] to an order.
// Higher means more likely to be refused or returned at the door.
type Scorer interface {
	Score(o model.Order) float64
}

const (
	// Equal-weight blend of the two observed return rates. Neither rate
	// has shown better predictive power than the other on historical
	// data, so neither gets a larger coefficient.
	customerRateWeight = 0.5
	skuRateWeight      = 0.5

	// A blended rate of 0.5 already saturates the score.
	rateScale = 200.0

	// First orders return more often than the rates alone suggest.
	firstTimeBump = 10.0
)

// HeuristicScorer derives the score from the order's own return-rate
// signals. It is deterministic: the same order always scores the same.
type HeuristicScorer struct{}

// BlendedReturnRate is the equal-weight mean of the customer and SKU
// return rates. It feeds both the score and the expected-profit model.
func BlendedReturnRate(o model.Order) float64 {
	return customerRateWeight*o.CustomerReturnRate + skuRateWeight*o.SKUReturnRate
}

func (HeuristicScorer) Score(o model.Order) float64 {
	score := BlendedReturnRate(o) * rateScale
	if o.FirstTimeCustomer {
		score += firstTimeBump
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
