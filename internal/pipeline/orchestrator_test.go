package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxtrace/internal/segment"
	"github.com/MrWong99/voxtrace/internal/speaker"
	"github.com/MrWong99/voxtrace/pkg/audio"
	embmock "github.com/MrWong99/voxtrace/pkg/provider/embeddings/mock"
	"github.com/MrWong99/voxtrace/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxtrace/pkg/provider/stt/mock"
	vadmock "github.com/MrWong99/voxtrace/pkg/provider/vad/mock"
)

const frameLen = segment.DefaultSampleRate * segment.DefaultFrameDurationMs / 1000

// ── Test doubles ────────────────────────────────────────────────────────────

// memorySpeakers is an in-memory speaker.Repository preserving insert order.
type memorySpeakers struct {
	mu         sync.Mutex
	profiles   []speaker.Profile
	touchErr   error
	touchCalls int
}

func (m *memorySpeakers) ListAll(ctx context.Context) ([]speaker.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]speaker.Profile, len(m.profiles))
	copy(out, m.profiles)
	return out, nil
}

func (m *memorySpeakers) Insert(ctx context.Context, p speaker.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append(m.profiles, p)
	return nil
}

func (m *memorySpeakers) TouchLastSeen(ctx context.Context, speakerID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchCalls++
	return m.touchErr
}

// memoryMessages is an in-memory MessageRepository with sequential IDs.
type memoryMessages struct {
	mu        sync.Mutex
	messages  []VoiceMessage
	insertErr error
}

func (m *memoryMessages) Insert(ctx context.Context, msg VoiceMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, msg)
	return msg.ID, nil
}

// memoryAudio is an in-memory AudioStore recording saves and deletes.
type memoryAudio struct {
	mu      sync.Mutex
	saves   []string
	deletes []string
	saveErr error
}

func (m *memoryAudio) Save(ctx context.Context, clip audio.Signal, speakerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	path := fmt.Sprintf("/audio/%s/clip-%d.wav", speakerID, len(m.saves))
	m.saves = append(m.saves, path)
	return path, nil
}

func (m *memoryAudio) Delete(ctx context.Context, locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, locator)
	return nil
}

// ── Fixtures ────────────────────────────────────────────────────────────────

// fixture bundles an orchestrator with all its fakes for inspection.
type fixture struct {
	orch        *Orchestrator
	speakers    *memorySpeakers
	messages    *memoryMessages
	audio       *memoryAudio
	encoder     *embmock.VoiceEncoder
	transcriber *sttmock.Transcriber
}

// newFixture builds an orchestrator whose segmenter sees speech in the given
// frame bands and whose encoder returns a one-hot embedding per band, so each
// clip resolves to its own speaker.
func newFixture(t *testing.T, bands [][2]int, opts ...Option) *fixture {
	t.Helper()

	cls := &vadmock.Classifier{
		IsSpeechFunc: func(i int) bool {
			i %= 400
			for _, b := range bands {
				if i >= b[0] && i < b[1] {
					return true
				}
			}
			return false
		},
	}
	segmenter := segment.NewSegmenter(segment.NewDetector(cls))

	// One-hot embedding per clip length: clips from distinct bands are
	// orthogonal, clips of the same length share a voice.
	encoder := &embmock.VoiceEncoder{
		EncodeFunc: func(clip audio.Signal) []float32 {
			e := make([]float32, 8)
			e[(len(clip.Samples)/frameLen)%8] = 1
			return e
		},
	}

	transcriber := &sttmock.Transcriber{
		Result: stt.Result{Text: "hello there", Language: "en", Confidence: 0.9},
	}

	speakers := &memorySpeakers{}
	messages := &memoryMessages{}
	audioStore := &memoryAudio{}
	resolver := speaker.NewResolver(speakers)

	return &fixture{
		orch: New(
			segmenter,
			encoder,
			resolver,
			transcriber,
			speakers,
			messages,
			audioStore,
			opts...,
		),
		speakers:    speakers,
		messages:    messages,
		audio:       audioStore,
		encoder:     encoder,
		transcriber: transcriber,
	}
}

// stream returns n frames of zero samples.
func stream(n int) []float32 {
	return make([]float32, n*frameLen)
}

// ── Tests ───────────────────────────────────────────────────────────────────

func TestProcessEndToEnd(t *testing.T) {
	t.Parallel()

	// One utterance in frames [50, 116): with padding it becomes an
	// 86-frame (~2.6 s) clip.
	f := newFixture(t, [][2]int{{50, 116}})

	results, err := f.orch.Process(context.Background(), stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if !r.IsNewSpeaker {
		t.Error("first clip of a new voice must enroll a speaker")
	}
	if r.SpeakerID == "" {
		t.Error("result is missing a speaker id")
	}
	if r.Transcription != "hello there" || r.Language != "en" {
		t.Errorf("transcription = %q/%q, want hello there/en", r.Transcription, r.Language)
	}
	if r.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", r.Confidence)
	}
	if r.AudioPath == "" {
		t.Error("result is missing the stored audio path")
	}
	if r.MessageID != 1 {
		t.Errorf("message id = %d, want 1", r.MessageID)
	}
	if len(f.messages.messages) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(f.messages.messages))
	}
	if got := f.messages.messages[0].SpeakerID; got != r.SpeakerID {
		t.Errorf("persisted speaker id %q differs from result %q", got, r.SpeakerID)
	}
}

func TestProcessRecognisesReturningSpeaker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, [][2]int{{50, 116}})
	ctx := context.Background()
	samples := stream(400)

	first, err := f.orch.Process(ctx, samples, segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := f.orch.Process(ctx, samples, segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if !first[0].IsNewSpeaker {
		t.Error("first pass should enroll")
	}
	if second[0].IsNewSpeaker {
		t.Error("second pass of the same voice must match, not enroll")
	}
	if first[0].SpeakerID != second[0].SpeakerID {
		t.Errorf("speaker ids differ across passes: %q vs %q", first[0].SpeakerID, second[0].SpeakerID)
	}
	if f.speakers.touchCalls != 1 {
		t.Errorf("expected 1 lastSeen touch, got %d", f.speakers.touchCalls)
	}
}

func TestProcessSilentStreamSucceedsEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	results, err := f.orch.Process(context.Background(), stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if results == nil {
		t.Fatal("expected an empty slice, got nil")
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
	if len(f.encoder.EncodeCalls) != 0 {
		t.Error("no clip stages should run for a silent stream")
	}
}

func TestProcessInvalidSampleRateFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.orch.Process(context.Background(), stream(10), 0); err == nil {
		t.Fatal("expected an error for an invalid sample rate")
	}
}

func TestProcessIsolatesClipFailures(t *testing.T) {
	t.Parallel()

	// Two clips; transcription of the first fails. The second must still be
	// processed and returned.
	f := newFixture(t, [][2]int{{30, 70}, {120, 180}})
	f.transcriber.TranscribeFunc = func(call int, clip audio.Signal) (stt.Result, error) {
		if call == 0 {
			return stt.Result{}, errors.New("backend unavailable")
		}
		return stt.Result{Text: "second clip", Language: "en"}, nil
	}

	results, err := f.orch.Process(context.Background(), stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 surviving result, got %d", len(results))
	}
	if results[0].Transcription != "second clip" {
		t.Errorf("surviving result = %q, want the second clip", results[0].Transcription)
	}
	if len(f.messages.messages) != 1 {
		t.Errorf("expected 1 persisted message, got %d", len(f.messages.messages))
	}
}

func TestProcessRollsBackAudioOnMessageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, [][2]int{{50, 116}})
	f.messages.insertErr = errors.New("constraint violation")

	results, err := f.orch.Process(context.Background(), stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if len(f.audio.saves) != 1 {
		t.Fatalf("expected 1 save attempt, got %d", len(f.audio.saves))
	}
	if len(f.audio.deletes) != 1 {
		t.Fatalf("expected the saved audio to be rolled back, got %d deletes", len(f.audio.deletes))
	}
	if f.audio.deletes[0] != f.audio.saves[0] {
		t.Errorf("rolled back %q, want %q", f.audio.deletes[0], f.audio.saves[0])
	}
}

func TestProcessTouchFailureDoesNotDropMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, [][2]int{{50, 116}})
	f.speakers.touchErr = errors.New("update failed")
	ctx := context.Background()
	samples := stream(400)

	if _, err := f.orch.Process(ctx, samples, segment.DefaultSampleRate); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	results, err := f.orch.Process(ctx, samples, segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("a lastSeen update failure must not drop the message, got %d results", len(results))
	}
}

func TestProcessParallelPreservesDiscoveryOrder(t *testing.T) {
	t.Parallel()

	// Three clips with distinct padded lengths: 60, 80, and 100 frames.
	bands := [][2]int{{30, 70}, {120, 180}, {230, 310}}
	f := newFixture(t, bands, WithWorkers(4))

	results, err := f.orch.Process(context.Background(), stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	wantFrames := []int{60, 80, 100}
	for i, r := range results {
		want := float64(wantFrames[i]*frameLen) / float64(segment.DefaultSampleRate)
		if r.Duration != want {
			t.Errorf("result %d duration = %f, want %f (discovery order violated)", i, r.Duration, want)
		}
	}
}

func TestProcessCancelledContextSkipsClips(t *testing.T) {
	t.Parallel()

	f := newFixture(t, [][2]int{{30, 70}, {120, 180}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.orch.Process(ctx, stream(400), segment.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results under a cancelled context, got %d", len(results))
	}
	if len(f.encoder.EncodeCalls) != 0 {
		t.Error("no clip work should start after cancellation")
	}
}
