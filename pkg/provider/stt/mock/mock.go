// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to script transcription results and inspect the clips that
// were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Clip is the signal passed to Transcribe. The sample slice is not
	// copied; tests must not mutate it.
	Clip audio.Signal
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when TranscribeFunc is nil.
	Result stt.Result

	// TranscribeFunc, when non-nil, decides the result per call. The first
	// argument is the zero-based index of the call, letting tests fail
	// specific clips.
	TranscribeFunc func(call int, clip audio.Signal) (stt.Result, error)

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Signal) (stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.TranscribeCalls)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Clip: clip})
	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	if t.TranscribeFunc != nil {
		return t.TranscribeFunc(idx, clip)
	}
	return t.Result, nil
}

// ResetCalls clears all recorded call history. Thread-safe.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
