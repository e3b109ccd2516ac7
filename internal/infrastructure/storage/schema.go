package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id                     TEXT PRIMARY KEY,
		category               TEXT NOT NULL,
		title                  TEXT NOT NULL,
		status                 TEXT NOT NULL,
		verification_level     INTEGER NOT NULL,
		first_seen             TIMESTAMPTZ NOT NULL,
		last_updated           TIMESTAMPTZ NOT NULL,
		fingerprint            JSONB NOT NULL,
		members                JSONB NOT NULL,
		sources                JSONB NOT NULL,
		summary                TEXT NOT NULL DEFAULT '',
		summary_state          TEXT NOT NULL DEFAULT '',
		summary_attempts       INTEGER NOT NULL DEFAULT 0,
		summary_error          TEXT NOT NULL DEFAULT '',
		push_notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
		version                INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS stories_category_recent_idx ON stories (category, last_updated DESC)`,
	`CREATE INDEX IF NOT EXISTS stories_status_idx ON stories (status, last_updated DESC)`,
	`CREATE TABLE IF NOT EXISTS story_articles (
		article_id TEXT PRIMARY KEY,
		story_id   TEXT NOT NULL REFERENCES stories (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS batch_jobs (
		id              TEXT PRIMARY KEY,
		story_ids       JSONB NOT NULL,
		handle          TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		submit_attempts INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		submitted_at    TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ,
		archived_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS batch_jobs_open_idx ON batch_jobs (created_at) WHERE archived_at IS NULL`,
}

// EnsureSchema creates the tables used by the Postgres repositories.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
