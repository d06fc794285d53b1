package intel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive persists dispatched report snapshots to Postgres for later
// analysis. Sessions themselves stay volatile; only the outbound reports are
// archived, so losing the process still loses conversation state by design.
// A nil *Archive is a valid no-op archive.
type Archive struct {
	pool *pgxpool.Pool
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS scam_reports (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	scam_detected BOOLEAN NOT NULL,
	scam_type     TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	intelligence  JSONB NOT NULL,
	agent_notes   TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
)`

// NewArchive connects to Postgres and ensures the reports table exists.
func NewArchive(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive ping: %w", err)
	}
	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Save inserts one report snapshot. Duplicate report IDs are ignored: the
// dispatcher may archive the same report on a retried goroutine.
func (a *Archive) Save(ctx context.Context, report Report) error {
	if a == nil {
		return nil
	}

	intel, err := json.Marshal(report.ExtractedIntelligence)
	if err != nil {
		return err
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO scam_reports
			(id, session_id, scam_detected, scam_type, message_count, intelligence, agent_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		report.ID, report.SessionID, report.ScamDetected, string(report.ScamType),
		report.TotalMessagesExchanged, intel, report.AgentNotes, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	if a != nil {
		a.pool.Close()
	}
}
