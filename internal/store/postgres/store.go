package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voxtrace/internal/pipeline"
	"github.com/MrWong99/voxtrace/internal/speaker"
)

// Compile-time interface checks.
var (
	_ speaker.Repository         = (*SpeakerStore)(nil)
	_ pipeline.MessageRepository = (*MessageStore)(nil)
)

// Store is the central PostgreSQL-backed persistence layer for Voxtrace. It
// holds a single [pgxpool.Pool] and exposes the two repositories:
//
//   - [Store.Speakers] returns a [SpeakerStore] implementing [speaker.Repository]
//   - [Store.Messages] returns a [MessageStore] implementing [pipeline.MessageRepository]
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	speakers *SpeakerStore
	messages *MessageStore
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the voice encoder
// used to produce speaker embeddings. Changing this value after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:     pool,
		speakers: &SpeakerStore{pool: pool},
		messages: &MessageStore{pool: pool},
	}, nil
}

// Speakers returns the speaker profile repository.
func (s *Store) Speakers() *SpeakerStore { return s.speakers }

// Messages returns the voice message repository.
func (s *Store) Messages() *MessageStore { return s.messages }

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// SpeakerStore
// ─────────────────────────────────────────────────────────────────────────────

// SpeakerStore implements [speaker.Repository] on the speakers table.
// Obtain one via [Store.Speakers] rather than constructing directly.
type SpeakerStore struct {
	pool *pgxpool.Pool
}

// ListAll returns every known profile, ordered by enrollment time so that
// iteration order is stable for the resolver's tie-break.
func (s *SpeakerStore) ListAll(ctx context.Context) ([]speaker.Profile, error) {
	const q = `
		SELECT speaker_id, embedding, first_seen, last_seen
		FROM   speakers
		ORDER  BY first_seen, speaker_id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("speaker store: list: %w", err)
	}

	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (speaker.Profile, error) {
		var (
			p   speaker.Profile
			vec pgvector.Vector
		)
		if err := row.Scan(&p.SpeakerID, &vec, &p.FirstSeen, &p.LastSeen); err != nil {
			return speaker.Profile{}, err
		}
		p.Embedding = vec.Slice()
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("speaker store: scan rows: %w", err)
	}
	return profiles, nil
}

// Insert persists a newly enrolled profile. The primary key on speaker_id
// acts as a backstop against duplicate enrollment; conflicts surface as
// errors rather than silent overwrites.
func (s *SpeakerStore) Insert(ctx context.Context, p speaker.Profile) error {
	const q = `
		INSERT INTO speakers (speaker_id, embedding, first_seen, last_seen)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q,
		p.SpeakerID,
		pgvector.NewVector(p.Embedding),
		p.FirstSeen,
		p.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("speaker store: insert %s: %w", p.SpeakerID, err)
	}
	return nil
}

// TouchLastSeen implements [speaker.Repository].
func (s *SpeakerStore) TouchLastSeen(ctx context.Context, speakerID string, ts time.Time) error {
	const q = `UPDATE speakers SET last_seen = $2 WHERE speaker_id = $1`

	tag, err := s.pool.Exec(ctx, q, speakerID, ts)
	if err != nil {
		return fmt.Errorf("speaker store: touch %s: %w", speakerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("speaker store: touch %s: profile not found", speakerID)
	}
	return nil
}

// Nearest returns the topK profiles whose embeddings are closest (cosine
// distance) to the query embedding, most similar first. The HNSW index on
// the embedding column serves this query, so it stays fast when the profile
// set has outgrown the resolver's linear scan.
func (s *SpeakerStore) Nearest(ctx context.Context, embedding []float32, topK int) ([]speaker.Profile, error) {
	const q = `
		SELECT speaker_id, embedding, first_seen, last_seen
		FROM   speakers
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("speaker store: nearest: %w", err)
	}

	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (speaker.Profile, error) {
		var (
			p   speaker.Profile
			vec pgvector.Vector
		)
		if err := row.Scan(&p.SpeakerID, &vec, &p.FirstSeen, &p.LastSeen); err != nil {
			return speaker.Profile{}, err
		}
		p.Embedding = vec.Slice()
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("speaker store: scan rows: %w", err)
	}
	return profiles, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MessageStore
// ─────────────────────────────────────────────────────────────────────────────

// MessageStore implements [pipeline.MessageRepository] on the voice_messages
// table. Obtain one via [Store.Messages] rather than constructing directly.
type MessageStore struct {
	pool *pgxpool.Pool
}

// Insert persists a voice message and returns its assigned identifier.
func (m *MessageStore) Insert(ctx context.Context, msg pipeline.VoiceMessage) (int64, error) {
	const q = `
		INSERT INTO voice_messages
		    (speaker_id, audio_path, duration, language, transcription, confidence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := m.pool.QueryRow(ctx, q,
		msg.SpeakerID,
		msg.AudioPath,
		msg.Duration,
		msg.Language,
		msg.Transcription,
		msg.Confidence,
		msg.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("message store: insert: %w", err)
	}
	return id, nil
}

// UpdateNotes replaces the free-text notes attached to a voice message.
func (m *MessageStore) UpdateNotes(ctx context.Context, id int64, notes string) error {
	const q = `UPDATE voice_messages SET notes = $2 WHERE id = $1`

	tag, err := m.pool.Exec(ctx, q, id, notes)
	if err != nil {
		return fmt.Errorf("message store: update notes %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message store: update notes %d: message not found", id)
	}
	return nil
}
