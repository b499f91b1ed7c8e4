// Package mock provides test doubles for the vad package interfaces.
//
// Use Classifier to script per-frame speech decisions and inspect the frames
// that were submitted for classification.
//
// Example:
//
//	cls := &mock.Classifier{
//	    IsSpeechFunc: func(i int) bool { return i >= 10 && i < 20 },
//	}
package mock

import (
	"sync"

	"github.com/MrWong99/voxtrace/pkg/provider/vad"
)

// IsSpeechCall records a single invocation of Classifier.IsSpeech.
type IsSpeechCall struct {
	// Frame is a copy of the bytes passed to IsSpeech.
	Frame []byte

	// SampleRate is the rate passed to IsSpeech.
	SampleRate int
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Result is returned by every IsSpeech call when IsSpeechFunc is nil.
	Result bool

	// IsSpeechFunc, when non-nil, decides the result per call. The argument
	// is the zero-based index of the call, letting tests mark specific frame
	// positions as speech.
	IsSpeechFunc func(call int) bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// IsSpeechCalls records every call to IsSpeech in order.
	IsSpeechCalls []IsSpeechCall
}

// IsSpeech records the call and returns the scripted result.
func (c *Classifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	idx := len(c.IsSpeechCalls)
	c.IsSpeechCalls = append(c.IsSpeechCalls, IsSpeechCall{Frame: cp, SampleRate: sampleRate})
	if c.Err != nil {
		return false, c.Err
	}
	if c.IsSpeechFunc != nil {
		return c.IsSpeechFunc(idx), nil
	}
	return c.Result, nil
}

// ResetCalls clears all recorded call history. Thread-safe.
func (c *Classifier) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IsSpeechCalls = nil
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
