package embeddings

import (
	"math"
	"testing"
)

func TestNormalizeUnitNorm(t *testing.T) {
	t.Parallel()

	v := Normalize([]float32{3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-6 {
		t.Errorf("norm after Normalize = %f, want 1.0", math.Sqrt(sum))
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	t.Parallel()

	v := Normalize([]float32{0, 0, 0})
	for i, x := range v {
		if math.IsNaN(float64(x)) {
			t.Fatalf("element %d is NaN", i)
		}
		if x != 0 {
			t.Errorf("element %d = %f, want 0", i, x)
		}
	}
}
