package segment

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxtrace/pkg/provider/vad/mock"
)

const frameLen = DefaultSampleRate * DefaultFrameDurationMs / 1000 // 480

// signal returns n seconds' worth of frames as zero samples plus extra
// trailing samples shorter than one frame.
func frames(n, extra int) []float32 {
	return make([]float32, n*frameLen+extra)
}

func TestDetectRunsSilenceYieldsNoRuns(t *testing.T) {
	t.Parallel()

	d := NewDetector(&mock.Classifier{Result: false})
	runs, err := d.DetectRuns(frames(100, 0), DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestDetectRunsAppliesPaddingAndClamps(t *testing.T) {
	t.Parallel()

	// Speech in frames [10, 20). Backdating by 10 frames clamps the start to
	// 0; extending by 10 frames puts the end at frame 30.
	cls := &mock.Classifier{
		IsSpeechFunc: func(i int) bool { return i >= 10 && i < 20 },
	}
	d := NewDetector(cls)

	runs, err := d.DetectRuns(frames(100, 0), DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Start != 0 {
		t.Errorf("run start = %d, want 0 (clamped)", runs[0].Start)
	}
	if want := 30 * frameLen; runs[0].End != want {
		t.Errorf("run end = %d, want %d", runs[0].End, want)
	}
}

func TestDetectRunsEndClampedToFrameCount(t *testing.T) {
	t.Parallel()

	// Speech ends at frame 85; padding would extend to frame 95, within the
	// 100-frame signal. A second case with speech up to frame 95 must clamp
	// the padded end to 100 frames, not beyond.
	cls := &mock.Classifier{
		IsSpeechFunc: func(i int) bool { return i >= 80 && i < 95 },
	}
	d := NewDetector(cls)

	runs, err := d.DetectRuns(frames(100, 0), DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if want := 100 * frameLen; runs[0].End != want {
		t.Errorf("run end = %d, want %d (clamped to frame count)", runs[0].End, want)
	}
}

func TestDetectRunsSignalEndingMidSpeech(t *testing.T) {
	t.Parallel()

	// Speech continues through the final full frame, plus 100 trailing
	// samples that do not fill a frame. The open run must be closed at the
	// literal end of the signal so the tail is not truncated.
	cls := &mock.Classifier{
		IsSpeechFunc: func(i int) bool { return i >= 90 },
	}
	d := NewDetector(cls)

	samples := frames(100, 100)
	runs, err := d.DetectRuns(samples, DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].End != len(samples) {
		t.Errorf("run end = %d, want %d (literal end of signal)", runs[0].End, len(samples))
	}
}

func TestDetectRunsClassifierErrorsTreatedAsNonSpeech(t *testing.T) {
	t.Parallel()

	cls := &mock.Classifier{Err: errFrame}
	d := NewDetector(cls)

	runs, err := d.DetectRuns(frames(50, 0), DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns must not fail on classifier errors: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs when every frame errors, got %d", len(runs))
	}
}

func TestDetectRunsRejectsInvalidSampleRate(t *testing.T) {
	t.Parallel()

	d := NewDetector(&mock.Classifier{})
	if _, err := d.DetectRuns(frames(10, 0), 0); err == nil {
		t.Error("expected an error for zero sample rate")
	}
	if _, err := d.DetectRuns(frames(10, 0), -8000); err == nil {
		t.Error("expected an error for negative sample rate")
	}
}

func TestDetectRunsResamplesToCanonicalRate(t *testing.T) {
	t.Parallel()

	cls := &mock.Classifier{Result: false}
	d := NewDetector(cls)

	// 3 s at 8 kHz becomes 3 s at 16 kHz: 100 full frames.
	if _, err := d.DetectRuns(make([]float32, 24000), 8000); err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if got := len(cls.IsSpeechCalls); got != 100 {
		t.Fatalf("expected 100 classified frames after resampling, got %d", got)
	}
	for i, call := range cls.IsSpeechCalls {
		if call.SampleRate != DefaultSampleRate {
			t.Fatalf("call %d used sample rate %d, want %d", i, call.SampleRate, DefaultSampleRate)
		}
		if len(call.Frame) != frameLen*2 {
			t.Fatalf("call %d frame is %d bytes, want %d", i, len(call.Frame), frameLen*2)
		}
	}
}

func TestDetectRunsSeparatesDistantUtterances(t *testing.T) {
	t.Parallel()

	// Two utterances more than 2× padding apart must stay separate runs.
	cls := &mock.Classifier{
		IsSpeechFunc: func(i int) bool {
			return (i >= 20 && i < 40) || (i >= 100 && i < 120)
		},
	}
	d := NewDetector(cls)

	runs, err := d.DetectRuns(frames(200, 0), DefaultSampleRate)
	if err != nil {
		t.Fatalf("DetectRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Start != 10*frameLen || runs[0].End != 50*frameLen {
		t.Errorf("run 0 = %+v, want {%d %d}", runs[0], 10*frameLen, 50*frameLen)
	}
	if runs[1].Start != 90*frameLen || runs[1].End != 130*frameLen {
		t.Errorf("run 1 = %+v, want {%d %d}", runs[1], 90*frameLen, 130*frameLen)
	}
}

// errFrame is a sentinel classifier failure used by the error-handling tests.
var errFrame = errors.New("frame classification failed")
