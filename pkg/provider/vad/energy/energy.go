// Package energy provides a pure-Go RMS-energy voice activity classifier.
//
// It computes the root-mean-square level of each 16-bit PCM frame and
// compares it against a threshold derived from the configured aggressiveness.
// This is deliberately simple — no model file, no CGO — and is the default
// classifier when no external VAD engine is configured. Hysteresis and
// padding are the segmentation layer's job, not this package's.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/voxtrace/pkg/provider/vad"
)

// Compile-time assertion that Classifier implements vad.Classifier.
var _ vad.Classifier = (*Classifier)(nil)

// rmsThresholds maps aggressiveness 0–3 to the RMS level (in 16-bit PCM
// units, max 32767) above which a frame counts as speech. Higher
// aggressiveness demands more energy.
var rmsThresholds = [4]float64{150, 300, 600, 1000}

// Classifier implements vad.Classifier using frame RMS energy. It is
// stateless and safe for concurrent use.
type Classifier struct {
	threshold float64
}

// New creates a Classifier with the given aggressiveness (0–3).
func New(aggressiveness vad.Aggressiveness) (*Classifier, error) {
	if !aggressiveness.IsValid() {
		return nil, fmt.Errorf("energy vad: aggressiveness %d out of range 0-3", aggressiveness)
	}
	return &Classifier{threshold: rmsThresholds[aggressiveness]}, nil
}

// IsSpeech reports whether the frame's RMS energy exceeds the aggressiveness
// threshold. The frame must be 16-bit signed little-endian PCM with an even
// byte count.
func (c *Classifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if sampleRate <= 0 {
		return false, fmt.Errorf("energy vad: invalid sample rate %d", sampleRate)
	}
	if len(frame) == 0 || len(frame)%2 != 0 {
		return false, fmt.Errorf("energy vad: frame length %d is not a whole number of 16-bit samples", len(frame))
	}

	n := len(frame) / 2
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2])))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))

	return rms >= c.threshold, nil
}
