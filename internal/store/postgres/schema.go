// Package postgres provides the PostgreSQL-backed persistence layer for
// Voxtrace: speaker profiles (with pgvector embeddings) and voice message
// records.
//
// Both repositories share a single [pgxpool.Pool] connection pool. The
// pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 256)
//	if err != nil { … }
//
//	profiles, _ := store.Speakers().ListAll(ctx)
//	id, _ := store.Messages().Insert(ctx, msg)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlVoiceMessages = `
CREATE TABLE IF NOT EXISTS voice_messages (
    id             BIGSERIAL    PRIMARY KEY,
    speaker_id     TEXT         NOT NULL REFERENCES speakers (speaker_id),
    audio_path     TEXT         NOT NULL,
    duration       DOUBLE PRECISION NOT NULL,
    language       TEXT         NOT NULL DEFAULT 'unknown',
    transcription  TEXT         NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    timestamp      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    notes          TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_voice_messages_speaker_id
    ON voice_messages (speaker_id);

CREATE INDEX IF NOT EXISTS idx_voice_messages_timestamp
    ON voice_messages (timestamp);
`

// ddlSpeakers returns the speakers DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlSpeakers(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS speakers (
    speaker_id  TEXT         PRIMARY KEY,
    embedding   vector(%d)   NOT NULL,
    first_seen  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_seen   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_speakers_embedding
    ON speakers USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the voice encoder configured for your
// deployment (e.g., 256 for resemblyzer, 192 for ECAPA-TDNN). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSpeakers(embeddingDimensions),
		ddlVoiceMessages,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
