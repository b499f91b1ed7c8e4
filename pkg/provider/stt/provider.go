// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber wraps a batch transcription service (e.g., a local
// whisper.cpp server, the whisper.cpp CGO bindings, or the OpenAI audio API)
// and maps one voice clip to text plus a detected language and confidence
// score. Transcription in this pipeline is strictly per-clip: the
// segmentation layer has already cut the stream into bounded utterances, so
// no streaming session management is needed.
//
// Implementations must be safe for concurrent use; the pipeline may
// transcribe several clips in parallel.
package stt

import (
	"context"

	"github.com/MrWong99/voxtrace/pkg/audio"
)

// Result is the transcription output for a single voice clip.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Language is the detected language code (e.g., "en", "de"). "unknown"
	// when the backend cannot detect a language.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64
}

// Transcriber is the abstraction over any batch speech-to-text backend.
type Transcriber interface {
	// Transcribe converts one voice clip to text. The clip must be mono
	// float32 PCM; most backends expect the pipeline's canonical 16 kHz rate.
	//
	// Returns an error if the backend request fails or ctx is cancelled. A
	// clip that contains no recognisable speech is not an error: it yields a
	// Result with empty Text.
	Transcribe(ctx context.Context, clip audio.Signal) (Result, error)
}
