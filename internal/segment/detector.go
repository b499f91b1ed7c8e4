// Package segment turns a continuous audio signal into discrete,
// duration-bounded voice clips.
//
// Detection happens in two layers. [Detector] slices the signal into fixed
// 30 ms frames, asks a [vad.Classifier] whether each frame contains speech,
// and applies a hangover/padding policy that backdates run starts and
// extends run ends by a fixed number of frames so that utterance onsets and
// offsets are not clipped and short intra-utterance silences are absorbed.
// [Segmenter] then cuts the detected runs out of the signal and filters them
// by duration bounds.
//
// All detection happens at a single canonical sample rate; input at any
// other rate is resampled once up front.
package segment

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/vad"
)

// Defaults for the detection parameters. They mirror the WebRTC VAD
// operating point: 30 ms frames at 16 kHz with 300 ms of padding.
const (
	DefaultSampleRate      = 16000
	DefaultFrameDurationMs = 30
	DefaultPaddingFrames   = 10
)

// Run is a contiguous span of speech in canonical-rate sample indices,
// after hangover padding has been applied. End is exclusive.
type Run struct {
	Start int
	End   int
}

// Detector converts a raw signal into speech runs using a frame-level
// classifier. It owns no persistent state and is safe for concurrent use.
type Detector struct {
	classifier      vad.Classifier
	sampleRate      int
	frameDurationMs int
	paddingFrames   int
}

// DetectorOption is a functional option for [NewDetector].
type DetectorOption func(*Detector)

// WithSampleRate overrides the canonical detection sample rate. The
// classifier must support the chosen rate. Defaults to 16000 Hz.
func WithSampleRate(hz int) DetectorOption {
	return func(d *Detector) { d.sampleRate = hz }
}

// WithFrameDuration overrides the classification frame duration in
// milliseconds. Defaults to 30 ms.
func WithFrameDuration(ms int) DetectorOption {
	return func(d *Detector) { d.frameDurationMs = ms }
}

// WithPaddingFrames overrides the number of frames by which a run's start is
// backdated and its end extended. Defaults to 10 frames (300 ms at the
// default frame duration).
func WithPaddingFrames(n int) DetectorOption {
	return func(d *Detector) { d.paddingFrames = n }
}

// NewDetector creates a Detector with the given frame classifier.
func NewDetector(classifier vad.Classifier, opts ...DetectorOption) *Detector {
	d := &Detector{
		classifier:      classifier,
		sampleRate:      DefaultSampleRate,
		frameDurationMs: DefaultFrameDurationMs,
		paddingFrames:   DefaultPaddingFrames,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SampleRate returns the canonical detection rate in Hz.
func (d *Detector) SampleRate() int { return d.sampleRate }

// frameLength returns the number of samples per classification frame at the
// canonical rate.
func (d *Detector) frameLength() int {
	return d.sampleRate * d.frameDurationMs / 1000
}

// DetectRuns finds speech runs in the signal and returns them as
// canonical-rate sample index spans.
//
// The signal is resampled to the canonical rate if needed, then converted to
// 16-bit PCM for classification. A trailing partial frame shorter than the
// frame length is never classified (it counts as non-speech). A frame whose
// classification errors also counts as non-speech; the pass itself never
// fails because of classifier errors.
//
// When the signal ends mid-speech the open run is closed at the literal
// end-of-signal sample index, so the tail (including any partial frame) is
// never truncated.
func (d *Detector) DetectRuns(samples []float32, sampleRate int) ([]Run, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("segment: invalid sample rate %d", sampleRate)
	}

	if sampleRate != d.sampleRate {
		samples = audio.Resample(samples, sampleRate, d.sampleRate)
	}

	pcm := audio.FloatToPCM16(samples)

	frameLen := d.frameLength()
	numFrames := len(samples) / frameLen

	speechFrames := make([]bool, numFrames)
	failedFrames := 0
	for i := range numFrames {
		frame := pcm[i*frameLen*2 : (i+1)*frameLen*2]
		isSpeech, err := d.classifier.IsSpeech(frame, d.sampleRate)
		if err != nil {
			failedFrames++
			continue
		}
		speechFrames[i] = isSpeech
	}
	if failedFrames > 0 {
		slog.Warn("segment: classifier failed on some frames, treated as non-speech",
			"failed", failedFrames,
			"total", numFrames,
		)
	}

	// Group consecutive speech frames into padded runs.
	var runs []Run
	inSpeech := false
	runStart := 0

	for i, isSpeech := range speechFrames {
		switch {
		case isSpeech && !inSpeech:
			runStart = max(0, i-d.paddingFrames)
			inSpeech = true
		case !isSpeech && inSpeech:
			runEnd := min(numFrames, i+d.paddingFrames)
			runs = append(runs, Run{
				Start: runStart * frameLen,
				End:   runEnd * frameLen,
			})
			inSpeech = false
		}
	}

	// Signal ended while still in speech: close the run at the literal end of
	// the signal. No trailing padding is needed since there is no more audio.
	if inSpeech {
		runs = append(runs, Run{Start: runStart * frameLen, End: len(samples)})
	}

	return runs, nil
}
