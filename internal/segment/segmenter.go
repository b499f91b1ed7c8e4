package segment

import (
	"fmt"

	"github.com/MrWong99/voxtrace/pkg/audio"
)

// Default duration bounds for voice clips, in seconds. Clips outside these
// bounds are discarded: anything shorter is noise, anything longer is not a
// single voice message.
const (
	DefaultMinClipSeconds = 0.5
	DefaultMaxClipSeconds = 30.0
)

// DefaultMergeGapSeconds is the silence inserted between clips by
// [MergeClips] when the caller has not configured a gap.
const DefaultMergeGapSeconds = 0.5

// Segmenter cuts detected speech runs out of a signal and filters them into
// duration-bounded voice clips. It owns no persistent state and is safe for
// concurrent use.
type Segmenter struct {
	detector   *Detector
	minSeconds float64
	maxSeconds float64
}

// SegmenterOption is a functional option for [NewSegmenter].
type SegmenterOption func(*Segmenter)

// WithMinClipSeconds overrides the inclusive minimum clip duration.
// Defaults to 0.5 s.
func WithMinClipSeconds(s float64) SegmenterOption {
	return func(sg *Segmenter) { sg.minSeconds = s }
}

// WithMaxClipSeconds overrides the inclusive maximum clip duration.
// Defaults to 30 s.
func WithMaxClipSeconds(s float64) SegmenterOption {
	return func(sg *Segmenter) { sg.maxSeconds = s }
}

// NewSegmenter creates a Segmenter on top of the given detector.
func NewSegmenter(detector *Detector, opts ...SegmenterOption) *Segmenter {
	sg := &Segmenter{
		detector:   detector,
		minSeconds: DefaultMinClipSeconds,
		maxSeconds: DefaultMaxClipSeconds,
	}
	for _, o := range opts {
		o(sg)
	}
	return sg
}

// SampleRate returns the canonical rate every produced clip carries.
func (sg *Segmenter) SampleRate() int { return sg.detector.SampleRate() }

// Segment detects speech runs in the signal and returns the runs that fall
// within the duration bounds as voice clips at the canonical rate. Runs
// outside the bounds are dropped silently: they are expected noise, not an
// error. Both bounds are inclusive.
//
// Segment is deterministic: the identical signal and parameters always yield
// identical clip boundaries.
func (sg *Segmenter) Segment(samples []float32, sampleRate int) ([]audio.Signal, error) {
	runs, err := sg.detector.DetectRuns(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("segment: detect runs: %w", err)
	}

	// Resample once so run indices and clip slices refer to the same signal.
	canonicalRate := sg.detector.SampleRate()
	if sampleRate != canonicalRate {
		samples = audio.Resample(samples, sampleRate, canonicalRate)
	}

	var clips []audio.Signal
	for _, run := range runs {
		clip := audio.Signal{
			Samples:    samples[run.Start:run.End],
			SampleRate: canonicalRate,
		}
		if d := clip.Seconds(); d < sg.minSeconds || d > sg.maxSeconds {
			continue
		}
		clips = append(clips, clip)
	}

	return clips, nil
}

// MergeClips concatenates clips into a single clip, inserting maxGapSeconds
// of silence between each consecutive pair. It never drops audio — every
// input clip appears in the output in order. Useful for callers that want to
// coalesce clips produced across rolling buffers before further processing.
//
// All clips must share the same sample rate; the first clip's rate is used.
// An empty input yields an empty result. A negative maxGapSeconds is treated
// as zero: the clips are concatenated back to back.
func MergeClips(clips []audio.Signal, maxGapSeconds float64) []audio.Signal {
	if len(clips) == 0 {
		return nil
	}

	rate := clips[0].SampleRate
	gap := int(maxGapSeconds * float64(rate))
	if gap < 0 {
		gap = 0
	}

	// Pre-size the destination to avoid quadratic re-allocation while
	// appending clip by clip.
	total := 0
	for _, c := range clips {
		total += len(c.Samples)
	}
	total += gap * (len(clips) - 1)

	merged := make([]float32, 0, total)
	for i, c := range clips {
		if i > 0 {
			merged = append(merged, make([]float32, gap)...)
		}
		merged = append(merged, c.Samples...)
	}

	return []audio.Signal{{Samples: merged, SampleRate: rate}}
}
