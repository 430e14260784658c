package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEuclideanDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 5.0, Distance(Euclidean, a, b), 1e-9)
}

func TestCosineDistanceIdentical(t *testing.T) {
	a := []float32{1, 2, 3}
	assert.InDelta(t, 0.0, Distance(Cosine, a, a), 1e-9)
}

func TestCosineDistanceZeroNorm(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	assert.Equal(t, 1.0, Distance(Cosine, a, b))
}

func TestDotDistanceIsNegatedDotProduct(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{3, 4}
	assert.InDelta(t, -11.0, Distance(Dot, a, b), 1e-9)
}
