// Package speaker resolves voice embeddings to speaker identities.
//
// Each known speaker is represented by a [Profile] holding a reference
// embedding. [Resolver.Resolve] compares a fresh clip embedding against all
// known profiles by cosine similarity and either returns the best match or
// enrolls a new profile when no candidate passes the same-speaker threshold.
//
// The scan-then-conditionally-insert sequence has no atomicity guarantee at
// the repository level, so the Resolver serialises it behind a mutex: two
// concurrent resolves of the same new voice converge to one profile instead
// of enrolling duplicates.
package speaker

import (
	"context"
	"time"
)

// Profile is a known speaker: an opaque identifier plus the reference
// embedding it was enrolled with.
type Profile struct {
	// SpeakerID is the opaque public identifier (e.g., "speaker_3fa85f64").
	SpeakerID string

	// Embedding is the L2-normalised reference voice embedding.
	Embedding []float32

	// FirstSeen is when the profile was enrolled.
	FirstSeen time.Time

	// LastSeen is when the speaker was last matched. Updated on every match.
	LastSeen time.Time
}

// Repository is the persistent store for speaker profiles. Implementations
// must be safe for concurrent use.
type Repository interface {
	// ListAll returns every known profile. Order is unspecified but must be
	// stable across calls that observe the same underlying data, since the
	// resolver's tie-break depends on iteration order.
	ListAll(ctx context.Context) ([]Profile, error)

	// Insert persists a newly enrolled profile.
	Insert(ctx context.Context, p Profile) error

	// TouchLastSeen updates the lastSeen timestamp of an existing profile.
	TouchLastSeen(ctx context.Context, speakerID string, ts time.Time) error
}
