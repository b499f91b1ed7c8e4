package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultThreshold is the cosine similarity above which (inclusive) two
// embeddings are considered the same speaker.
const DefaultThreshold = 0.75

// Resolver matches clip embeddings against known speaker profiles and
// enrolls new profiles when nothing matches. Safe for concurrent use.
type Resolver struct {
	repo      Repository
	threshold float64
	now       func() time.Time

	// mu serialises the scan + conditionally-insert sequence. Without it two
	// concurrent resolves of the same new voice would both miss and both
	// enroll, creating duplicate identities for one person.
	mu sync.Mutex
}

// ResolverOption is a functional option for [NewResolver].
type ResolverOption func(*Resolver)

// WithThreshold overrides the same-speaker similarity threshold (0–1,
// inclusive acceptance). Defaults to 0.75.
func WithThreshold(t float64) ResolverOption {
	return func(r *Resolver) { r.threshold = t }
}

// WithClock replaces the time source. Tests use this to make firstSeen and
// lastSeen deterministic.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver backed by the given profile repository.
func NewResolver(repo Repository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:      repo,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds the known profile most similar to the embedding, accepting
// it only when the similarity also passes the same-speaker threshold
// (inclusive). Ties on similarity keep the first-encountered profile in
// repository iteration order.
//
// When the candidate pool is empty or the best candidate fails the
// threshold, a new profile is enrolled and persisted before being returned,
// with isNew = true. On a match the returned profile carries an updated
// LastSeen; persisting that mutation is the caller's responsibility.
func (r *Resolver) Resolve(ctx context.Context, embedding []float32) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.repo.ListAll(ctx)
	if err != nil {
		return Profile{}, false, fmt.Errorf("speaker: list profiles: %w", err)
	}

	bestIdx := -1
	bestSim := 0.0
	for i, p := range profiles {
		// A profile enrolled with a different encoder dimension can never be
		// a legitimate candidate; comparing prefixes would produce a
		// plausible-looking but meaningless score.
		if len(p.Embedding) != len(embedding) {
			slog.Warn("speaker: embedding dimension mismatch, profile skipped",
				"speaker_id", p.SpeakerID,
				"profile_dims", len(p.Embedding),
				"query_dims", len(embedding),
			)
			continue
		}
		sim := CosineSimilarity(embedding, p.Embedding)
		if sim > 1+1e-6 || sim < -1-1e-6 {
			slog.Warn("speaker: similarity out of [-1,1], embeddings are not normalised",
				"similarity", sim,
				"speaker_id", p.SpeakerID,
			)
		}
		// Strict > keeps the first-encountered profile on ties.
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}

	if bestIdx >= 0 && bestSim >= r.threshold {
		matched := profiles[bestIdx]
		matched.LastSeen = r.now()
		return matched, false, nil
	}

	now := r.now()
	fresh := Profile{
		SpeakerID: newSpeakerID(),
		Embedding: embedding,
		FirstSeen: now,
		LastSeen:  now,
	}
	if err := r.repo.Insert(ctx, fresh); err != nil {
		return Profile{}, false, fmt.Errorf("speaker: enroll profile: %w", err)
	}

	slog.Info("speaker: enrolled new profile",
		"speaker_id", fresh.SpeakerID,
		"best_similarity", bestSim,
		"known_profiles", len(profiles),
	)
	return fresh, true, nil
}

// newSpeakerID generates an opaque speaker identifier.
func newSpeakerID() string {
	return "speaker_" + uuid.NewString()[:8]
}
