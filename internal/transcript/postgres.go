package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_lines (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_lines_call_created ON transcript_lines (call_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS call_usage (
			call_id TEXT PRIMARY KEY,
			input_tokens BIGINT NOT NULL,
			output_tokens BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveLine(ctx context.Context, line Line) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_lines (id, call_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		line.ID,
		line.CallID,
		line.Role,
		line.Content,
		line.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save transcript line: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveUsage(ctx context.Context, record UsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_usage (call_id, input_tokens, output_tokens, recorded_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (call_id) DO UPDATE
		 SET input_tokens = EXCLUDED.input_tokens,
		     output_tokens = EXCLUDED.output_tokens,
		     recorded_at = EXCLUDED.recorded_at`,
		record.CallID,
		record.InputTokens,
		record.OutputTokens,
		record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentLines(ctx context.Context, callID string, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, role, content, created_at
		 FROM transcript_lines WHERE call_id=$1 ORDER BY created_at DESC LIMIT $2`,
		callID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript lines: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0, limit)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CallID, &l.Role, &l.Content, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}

	// Reverse into chronological order for display.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	return lines, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
