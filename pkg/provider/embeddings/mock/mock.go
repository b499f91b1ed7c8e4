// Package mock provides test doubles for the embeddings package interfaces.
//
// Use VoiceEncoder to inject deterministic embedding vectors and inspect the
// clips that were submitted for encoding.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/embeddings"
)

// EncodeCall records a single invocation of VoiceEncoder.Encode.
type EncodeCall struct {
	// Clip is the signal passed to Encode. The sample slice is not copied;
	// tests must not mutate it.
	Clip audio.Signal
}

// VoiceEncoder is a mock implementation of embeddings.VoiceEncoder.
type VoiceEncoder struct {
	mu sync.Mutex

	// Vector is returned (copied) by every Encode call when EncodeFunc is nil.
	Vector []float32

	// EncodeFunc, when non-nil, computes the result per call from the clip.
	// Lets tests derive distinguishable embeddings from the audio content.
	EncodeFunc func(clip audio.Signal) []float32

	// Err, if non-nil, is returned by every Encode call.
	Err error

	// Dims is the value reported by Dimensions. When zero, Dimensions falls
	// back to len(Vector).
	Dims int

	// EncodeCalls records every call to Encode in order.
	EncodeCalls []EncodeCall
}

// Encode records the call and returns the scripted vector.
func (v *VoiceEncoder) Encode(ctx context.Context, clip audio.Signal) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.EncodeCalls = append(v.EncodeCalls, EncodeCall{Clip: clip})
	if v.Err != nil {
		return nil, v.Err
	}
	if v.EncodeFunc != nil {
		return v.EncodeFunc(clip), nil
	}
	out := make([]float32, len(v.Vector))
	copy(out, v.Vector)
	return out, nil
}

// Dimensions returns Dims, or len(Vector) when Dims is zero.
func (v *VoiceEncoder) Dimensions() int {
	if v.Dims > 0 {
		return v.Dims
	}
	return len(v.Vector)
}

// ResetCalls clears all recorded call history. Thread-safe.
func (v *VoiceEncoder) ResetCalls() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.EncodeCalls = nil
}

// Ensure VoiceEncoder implements embeddings.VoiceEncoder at compile time.
var _ embeddings.VoiceEncoder = (*VoiceEncoder)(nil)
