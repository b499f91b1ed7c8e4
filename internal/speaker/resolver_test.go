package speaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// memoryRepo is an in-memory Repository that preserves insertion order.
type memoryRepo struct {
	mu          sync.Mutex
	profiles    []Profile
	insertErr   error
	listErr     error
	touchCalls  int
	insertCalls int
}

func (m *memoryRepo) ListAll(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Profile, len(m.profiles))
	copy(out, m.profiles)
	return out, nil
}

func (m *memoryRepo) Insert(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.profiles = append(m.profiles, p)
	return nil
}

func (m *memoryRepo) TouchLastSeen(ctx context.Context, speakerID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchCalls++
	for i := range m.profiles {
		if m.profiles[i].SpeakerID == speakerID {
			m.profiles[i].LastSeen = ts
			return nil
		}
	}
	return errors.New("profile not found")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResolveEnrollsFirstSpeaker(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{}
	enrolledAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := NewResolver(repo, WithClock(fixedClock(enrolledAt)))

	p, isNew, err := r.Resolve(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew {
		t.Error("expected isNew = true for an empty profile pool")
	}
	if !strings.HasPrefix(p.SpeakerID, "speaker_") {
		t.Errorf("speaker id %q lacks the speaker_ prefix", p.SpeakerID)
	}
	if !p.FirstSeen.Equal(enrolledAt) || !p.LastSeen.Equal(enrolledAt) {
		t.Errorf("timestamps = %v / %v, want both %v", p.FirstSeen, p.LastSeen, enrolledAt)
	}
	// The profile must be persisted before Resolve returns.
	if len(repo.profiles) != 1 {
		t.Fatalf("expected 1 persisted profile, got %d", len(repo.profiles))
	}
}

func TestResolveMatchesKnownSpeaker(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_aaaa1111", Embedding: []float32{1, 0}, FirstSeen: base, LastSeen: base},
	}}
	later := base.Add(time.Hour)
	r := NewResolver(repo, WithClock(fixedClock(later)))

	p, isNew, err := r.Resolve(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if isNew {
		t.Error("expected isNew = false for an identical embedding")
	}
	if p.SpeakerID != "speaker_aaaa1111" {
		t.Errorf("matched %q, want speaker_aaaa1111", p.SpeakerID)
	}
	if !p.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", p.LastSeen, later)
	}
	if repo.insertCalls != 0 {
		t.Errorf("expected no enrollment, got %d inserts", repo.insertCalls)
	}
}

func TestResolveThresholdBoundary(t *testing.T) {
	t.Parallel()

	// Unit vectors whose cosine against (1,0) sits just either side of the
	// 0.75 default threshold.
	tests := []struct {
		name    string
		known   []float32
		wantNew bool
	}{
		{"just above threshold matches", []float32{0.76, 0.649923}, false},
		{"just below threshold enrolls", []float32{0.74, 0.672607}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &memoryRepo{profiles: []Profile{
				{SpeakerID: "speaker_edge", Embedding: tt.known},
			}}
			r := NewResolver(repo)

			_, isNew, err := r.Resolve(context.Background(), []float32{1, 0})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if isNew != tt.wantNew {
				t.Errorf("isNew = %v, want %v", isNew, tt.wantNew)
			}
		})
	}
}

func TestResolveExactThresholdMatches(t *testing.T) {
	t.Parallel()

	// Pin the threshold to the exact similarity the scan will compute, so
	// acceptance hinges on the comparison being inclusive.
	known := []float32{0.8, 0.6}
	query := []float32{1, 0}
	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_exact", Embedding: known},
	}}
	r := NewResolver(repo, WithThreshold(CosineSimilarity(query, known)))

	p, isNew, err := r.Resolve(context.Background(), query)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if isNew {
		t.Error("similarity exactly at the threshold must be accepted")
	}
	if p.SpeakerID != "speaker_exact" {
		t.Errorf("matched %q, want speaker_exact", p.SpeakerID)
	}
	if repo.insertCalls != 0 {
		t.Errorf("expected no enrollment, got %d inserts", repo.insertCalls)
	}
}

func TestResolveSkipsDimensionMismatchedProfiles(t *testing.T) {
	t.Parallel()

	// The 3-dim profile's prefix is identical to the 2-dim query, so a
	// prefix comparison would score a perfect 1.0. The resolver must not
	// treat it as a candidate.
	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_wrongdim", Embedding: []float32{1, 0, 0}},
	}}
	r := NewResolver(repo)

	p, isNew, err := r.Resolve(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew {
		t.Error("a dimension-mismatched profile must not produce a match")
	}
	if p.SpeakerID == "speaker_wrongdim" {
		t.Error("resolved to the mismatched profile")
	}
}

func TestResolveBelowThresholdEnrolls(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_other", Embedding: []float32{0, 1}},
	}}
	r := NewResolver(repo)

	p, isNew, err := r.Resolve(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew {
		t.Error("expected enrollment for a dissimilar embedding")
	}
	if p.SpeakerID == "speaker_other" {
		t.Error("enrolled profile reused an existing identity")
	}
	if len(repo.profiles) != 2 {
		t.Fatalf("expected 2 profiles after enrollment, got %d", len(repo.profiles))
	}
}

func TestResolveTieKeepsFirstEncountered(t *testing.T) {
	t.Parallel()

	// Both profiles have identical embeddings; the first in iteration order
	// must win.
	e := []float32{1, 0}
	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_first", Embedding: e},
		{SpeakerID: "speaker_second", Embedding: e},
	}}
	r := NewResolver(repo)

	p, isNew, err := r.Resolve(context.Background(), e)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if isNew {
		t.Fatal("expected a match")
	}
	if p.SpeakerID != "speaker_first" {
		t.Errorf("tie resolved to %q, want speaker_first", p.SpeakerID)
	}
}

func TestResolveCustomThreshold(t *testing.T) {
	t.Parallel()

	// cos ≈ 0.894 between (1,0) and (2,1)/‖·‖.
	repo := &memoryRepo{profiles: []Profile{
		{SpeakerID: "speaker_near", Embedding: []float32{0.894, 0.447}},
	}}

	strict := NewResolver(repo, WithThreshold(0.95))
	_, isNew, err := strict.Resolve(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew {
		t.Error("strict threshold should have rejected the near match")
	}
}

func TestResolveListErrorPropagates(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{listErr: errors.New("database down")}
	r := NewResolver(repo)

	if _, _, err := r.Resolve(context.Background(), []float32{1, 0}); err == nil {
		t.Fatal("expected an error when the repository list fails")
	}
	if repo.insertCalls != 0 {
		t.Error("must not enroll when the candidate pool is unknown")
	}
}

func TestResolveInsertErrorPropagates(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{insertErr: errors.New("insert failed")}
	r := NewResolver(repo)

	if _, _, err := r.Resolve(context.Background(), []float32{1, 0}); err == nil {
		t.Fatal("expected an error when enrollment persistence fails")
	}
}

func TestResolveConcurrentEnrollmentConverges(t *testing.T) {
	t.Parallel()

	// Two goroutines resolve near-identical new voices at once. The mutex
	// must serialise scan+insert so exactly one profile is enrolled and the
	// second resolve matches it.
	repo := &memoryRepo{}
	r := NewResolver(repo)

	embeddings := [][]float32{
		{1, 0},
		{0.999, 0.0447}, // cos ≈ 0.999 against the first
	}

	var wg sync.WaitGroup
	ids := make([]string, len(embeddings))
	for i, e := range embeddings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := r.Resolve(context.Background(), e)
			if err != nil {
				t.Errorf("Resolve %d failed: %v", i, err)
				return
			}
			ids[i] = p.SpeakerID
		}()
	}
	wg.Wait()

	if len(repo.profiles) != 1 {
		t.Fatalf("expected exactly 1 enrolled profile, got %d", len(repo.profiles))
	}
	if ids[0] != ids[1] {
		t.Errorf("concurrent resolves produced distinct identities: %q vs %q", ids[0], ids[1])
	}
}
