// Package audiostore persists voice clip audio as WAV files on the local
// filesystem. Files are organised into one subdirectory per speaker so a
// speaker's clips can be browsed (or bulk-deleted) without touching the
// database.
//
// The returned locator is the absolute file path, which the message
// repository records verbatim. Paths are opaque to callers; only this
// package interprets them.
package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxtrace/internal/pipeline"
	"github.com/MrWong99/voxtrace/pkg/audio"
)

// Compile-time interface check.
var _ pipeline.AudioStore = (*Store)(nil)

// Store writes clip audio under a base directory, one subdirectory per
// speaker. Safe for concurrent use: every Save produces a unique filename,
// and os.MkdirAll tolerates concurrent creation of the same speaker
// directory.
type Store struct {
	baseDir string
	now     func() time.Time
}

// Option is a functional option for [New].
type Option func(*Store)

// WithClock replaces the time source used for filename timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store rooted at baseDir, creating the directory if needed.
func New(baseDir string, opts ...Option) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("audiostore: base directory must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("audiostore: create base directory: %w", err)
	}

	s := &Store{
		baseDir: baseDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save encodes the clip as a 16-bit mono WAV file and writes it to
// <baseDir>/<speakerID>/<UTC timestamp>_<short id>.wav. It returns the
// absolute path of the written file.
func (s *Store) Save(ctx context.Context, clip audio.Signal, speakerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("audiostore: save: %w", err)
	}
	if len(clip.Samples) == 0 {
		return "", errors.New("audiostore: save: clip has no samples")
	}

	dir := s.baseDir
	if speakerID != "" {
		dir = filepath.Join(s.baseDir, speakerID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("audiostore: create speaker directory: %w", err)
		}
	}

	// UTC timestamp plus a short unique suffix keeps names sortable and
	// collision-free even when two clips land in the same second.
	name := fmt.Sprintf("%s_%s.wav",
		s.now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(dir, name)

	wav := audio.EncodeWAV(audio.FloatToPCM16(clip.Samples), clip.SampleRate)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("audiostore: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads a previously saved clip back into memory.
func (s *Store) Load(path string) (audio.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Signal{}, fmt.Errorf("audiostore: read %s: %w", path, err)
	}
	pcm, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Signal{}, fmt.Errorf("audiostore: decode %s: %w", path, err)
	}
	return audio.Signal{
		Samples:    audio.PCM16ToFloat(pcm),
		SampleRate: sampleRate,
	}, nil
}

// Delete removes a saved clip. Deleting a path that no longer exists is not
// an error, so rollbacks stay idempotent.
func (s *Store) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("audiostore: delete: %w", err)
	}
	if err := os.Remove(locator); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audiostore: delete %s: %w", locator, err)
	}
	return nil
}

// Duration reports the length in seconds of a saved clip without decoding
// its samples. Returns 0 for files that cannot be read or parsed.
func (s *Store) Duration(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	d, err := audio.WAVDuration(data)
	if err != nil {
		return 0
	}
	return d
}
