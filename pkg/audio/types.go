package audio

import "time"

// Signal is a mono audio signal flowing through the pipeline. Samples are
// float32 PCM values nominally in the range [-1.0, 1.0].
type Signal struct {
	// Samples holds the PCM sample values.
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for the canonical pipeline rate).
	SampleRate int
}

// Seconds returns the play length of the signal in seconds.
func (s Signal) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Duration returns the play length of the signal as a time.Duration.
func (s Signal) Duration() time.Duration {
	return time.Duration(s.Seconds() * float64(time.Second))
}
