package speaker

import (
	"encoding/binary"
	"fmt"
	"math"
)

// simEpsilon guards the cosine denominator against division by zero for
// degenerate (all-zero) embeddings.
const simEpsilon = 1e-8

// CosineSimilarity returns the cosine similarity of two embeddings:
// dot(a,b) / (‖a‖·‖b‖ + ε). For L2-normalised embeddings the result lies in
// [-1, 1]; a value outside that range indicates un-normalised inputs and is
// the caller's defect to surface, not to clamp here.
//
// Both embeddings must have the same dimension. Mismatched inputs are
// compared over the shared prefix only, so callers that can encounter mixed
// dimensions must check lengths first — the [Resolver] does.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + simEpsilon)
}

// SerializeEmbedding encodes an embedding as little-endian IEEE-754 float32
// bytes for storage. The encoding is deterministic and round-trips exactly
// through [DeserializeEmbedding].
func SerializeEmbedding(e []float32) []byte {
	out := make([]byte, len(e)*4)
	for i, v := range e {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DeserializeEmbedding decodes bytes produced by [SerializeEmbedding].
func DeserializeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("speaker: embedding data length %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	e := make([]float32, n)
	for i := range n {
		e[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return e, nil
}
