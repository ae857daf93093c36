package rfm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	// nearest rank: ceil(p/100*n)-1
	assert.Equal(t, 1.0, percentile(sorted, 25))
	assert.Equal(t, 2.0, percentile(sorted, 50))
	assert.Equal(t, 3.0, percentile(sorted, 75))
	assert.Equal(t, 4.0, percentile(sorted, 100))
	assert.Equal(t, 1.0, percentile(sorted, 1))
}

func TestPercentile_Edges(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 42.0, percentile([]float64{42}, 25))
	assert.Equal(t, 42.0, percentile([]float64{42}, 99))

	// p=0 clamps to the first element
	assert.Equal(t, 7.0, percentile([]float64{7, 8, 9}, 0))
}
