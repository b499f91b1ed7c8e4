// Package pipeline orchestrates the voice-message processing pipeline:
// segmentation, speaker resolution, transcription, and persistence.
//
// One [Orchestrator.Process] call handles one audio stream. The stream is
// first cut into voice clips by the segmenter; each clip is then processed
// independently (embedding → speaker resolution → transcription → storage).
// A failure while processing a single clip is logged, rolled back, and
// skipped — it never aborts the rest of the stream. Only failures outside
// the per-clip loop (segmentation itself) propagate to the caller.
//
// Clip work has no data dependency on sibling clips and may run on parallel
// workers, but the returned results always preserve the order in which the
// segmenter discovered the clips.
package pipeline

import (
	"context"
	"time"

	"github.com/MrWong99/voxtrace/pkg/audio"
)

// VoiceMessage is the persistent record of one processed voice clip.
type VoiceMessage struct {
	// ID is assigned by the message repository on insert.
	ID int64

	// SpeakerID is the opaque identifier of the resolved speaker profile.
	SpeakerID string

	// AudioPath locates the stored clip audio (see [AudioStore]).
	AudioPath string

	// Duration is the clip length in seconds at the canonical rate.
	Duration float64

	// Language is the detected language code, "unknown" when undetected.
	Language string

	// Transcription is the transcribed text. May be empty for clips the
	// backend recognised no speech in.
	Transcription string

	// Confidence is the transcription confidence (0.0–1.0).
	Confidence float64

	// Timestamp is when the clip was processed.
	Timestamp time.Time
}

// Result is the per-clip output returned by [Orchestrator.Process],
// immutable once produced. Results appear in clip discovery order.
type Result struct {
	// MessageID is the persisted voice message's assigned identifier.
	MessageID int64

	// SpeakerID identifies the resolved speaker profile.
	SpeakerID string

	// IsNewSpeaker reports whether this clip enrolled a new profile.
	IsNewSpeaker bool

	// Language is the detected language code.
	Language string

	// Transcription is the transcribed text.
	Transcription string

	// Confidence is the transcription confidence (0.0–1.0).
	Confidence float64

	// Duration is the clip length in seconds.
	Duration float64

	// AudioPath locates the stored clip audio.
	AudioPath string

	// Timestamp is when the clip was processed.
	Timestamp time.Time
}

// MessageRepository is the persistent store for voice message records.
// Implementations must be safe for concurrent use.
type MessageRepository interface {
	// Insert persists a voice message and returns its assigned identifier.
	Insert(ctx context.Context, msg VoiceMessage) (int64, error)
}

// AudioStore persists clip audio bytes and returns an opaque locator.
// Implementations must be safe for concurrent use.
type AudioStore interface {
	// Save stores the clip and returns its locator (e.g., a file path).
	Save(ctx context.Context, clip audio.Signal, speakerID string) (string, error)

	// Delete removes a previously saved clip. Used to roll back a clip whose
	// later pipeline stages failed.
	Delete(ctx context.Context, locator string) error
}
