// Package embeddings defines the VoiceEncoder interface for speaker
// embedding backends.
//
// A voice encoder maps a voice clip to a dense float32 vector that acts as a
// fingerprint of the speaker's voice. Vectors from the same encoder instance
// share a fixed dimensionality and are L2-normalised, so cosine similarity
// between them is a meaningful same-speaker score.
//
// Implementations must be safe for concurrent use and must be deterministic:
// encoding the identical clip twice yields the identical vector.
package embeddings

import (
	"context"
	"math"

	"github.com/MrWong99/voxtrace/pkg/audio"
)

// VoiceEncoder is the abstraction over any speaker-embedding backend.
//
// All vectors returned by a single VoiceEncoder instance must share the same
// dimensionality (returned by Dimensions). Callers must not mix vectors from
// different encoder instances in the same similarity computation unless they
// have verified that both use the same model.
type VoiceEncoder interface {
	// Encode computes the speaker embedding for a voice clip. Returns a
	// float32 slice of length Dimensions(), L2-normalised, or an error if
	// the request fails or ctx is cancelled.
	Encode(ctx context.Context, clip audio.Signal) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this encoder. The value is determined by the underlying model and is
	// constant for the lifetime of the encoder instance.
	Dimensions() int
}

// normEpsilon guards the L2 normalisation against division by zero for
// degenerate (all-zero) vectors.
const normEpsilon = 1e-8

// Normalize scales v in place to unit L2 norm and returns it. An all-zero
// vector stays (effectively) all-zero thanks to the epsilon guard rather
// than producing NaNs.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
