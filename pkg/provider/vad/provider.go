// Package vad defines the Classifier interface for frame-level voice
// activity detection backends.
//
// A classifier wraps a speech/non-speech detector (e.g., WebRTC VAD, Silero
// VAD, or a simple energy gate) operating on one fixed-duration PCM frame at
// a time. The segmentation layer slices a signal into frames, queries the
// classifier per frame, and applies its own hangover policy on top, so
// classifiers are stateless from the caller's perspective.
//
// Classification errors never abort a detection pass: callers treat a frame
// whose classification failed as non-speech. Implementations should still
// return the error so it can be logged.
//
// Implementations must be safe for concurrent use.
package vad

// Classifier decides whether a single audio frame contains speech.
type Classifier interface {
	// IsSpeech classifies one frame of 16-bit signed little-endian PCM at the
	// given sample rate. The frame length must match the duration the
	// classifier was configured for (e.g., 30 ms ⇒ 960 bytes at 16 kHz).
	//
	// A non-nil error means the frame could not be classified; callers must
	// treat such frames as non-speech rather than failing the detection pass.
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// Aggressiveness controls how strictly a classifier filters out non-speech.
// The scale follows the WebRTC VAD convention: 0 is the least aggressive
// (most frames pass as speech), 3 the most aggressive.
type Aggressiveness int

// IsValid reports whether a is within the supported 0–3 range.
func (a Aggressiveness) IsValid() bool {
	return a >= 0 && a <= 3
}
