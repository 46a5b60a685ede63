package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stoik/phish-catcher/internal/domain"
)

// PostgresStore implements ports.AlertStore for PostgreSQL.
// Active alerts are the rows without a segment; rotation assigns them one.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time

	// Serializes rotations issued by this process
	rotateMu sync.Mutex
}

// NewPostgresStore creates a new PostgreSQL alert store
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Append is called from every scoring worker
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates database tables if they don't exist
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	-- ============================================================================
	-- ALERT_SEGMENTS TABLE
	-- ============================================================================
	-- One row per rotation. archived_at stays NULL until the report was mailed,
	-- which is what Pending lists.
	CREATE TABLE IF NOT EXISTS alert_segments (
		id UUID PRIMARY KEY,
		name VARCHAR(64) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_segments_pending ON alert_segments(closed_at) WHERE archived_at IS NULL;

	-- ============================================================================
	-- ALERTS TABLE
	-- ============================================================================
	-- segment_id NULL = active segment. Score and source are kept for
	-- investigation even though reports only carry the domain.
	CREATE TABLE IF NOT EXISTS alerts (
		id UUID PRIMARY KEY,
		domain TEXT NOT NULL,
		score INTEGER NOT NULL,
		source VARCHAR(16) NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		segment_id UUID REFERENCES alert_segments(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(observed_at) WHERE segment_id IS NULL;
	CREATE INDEX IF NOT EXISTS idx_alerts_segment ON alerts(segment_id, observed_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append inserts an alert into the active segment
func (s *PostgresStore) Append(ctx context.Context, alert domain.Alert) error {
	if err := validRecord(alert.Domain); err != nil {
		return err
	}
	observedAt := alert.ObservedAt
	if observedAt.IsZero() {
		observedAt = s.now()
	}

	query := `
		INSERT INTO alerts (id, domain, score, source, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, uuid.New(), alert.Domain, alert.Score, string(alert.Source), observedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Rotate closes the active segment in a single transaction.
// Alerts committed after the UPDATE snapshot stay active for the next segment.
func (s *PostgresStore) Rotate(ctx context.Context) (*domain.Segment, error) {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback()

	var createdAt sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT MIN(observed_at) FROM alerts WHERE segment_id IS NULL`).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("failed to inspect active segment: %w", err)
	}
	if !createdAt.Valid {
		return nil, nil
	}

	closedAt := s.now()
	name, err := segmentName(closedAt, func(name string) (bool, error) {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alert_segments WHERE name = $1)`, name).Scan(&exists)
		return exists, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to name segment: %w", err)
	}

	segment := domain.Segment{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: createdAt.Time,
		ClosedAt:  closedAt,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alert_segments (id, name, created_at, closed_at) VALUES ($1, $2, $3, $4)`,
		segment.ID, segment.Name, segment.CreatedAt, segment.ClosedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE alerts SET segment_id = $1 WHERE segment_id IS NULL`, segment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to close segment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Emptied by a concurrent rotation from another process
		return nil, nil
	}

	segment.Records, err = segmentRecords(ctx, tx, segment.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rotation: %w", err)
	}
	return &segment, nil
}

// Pending lists segments that were never archived, oldest first
func (s *PostgresStore) Pending(ctx context.Context) ([]domain.Segment, error) {
	query := `
		SELECT id, name, created_at, closed_at
		FROM alert_segments
		WHERE archived_at IS NULL
		ORDER BY closed_at ASC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending segments: %w", err)
	}
	defer rows.Close()

	segments := make([]domain.Segment, 0)
	for rows.Next() {
		var segment domain.Segment
		if err := rows.Scan(&segment.ID, &segment.Name, &segment.CreatedAt, &segment.ClosedAt); err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range segments {
		segments[i].Records, err = segmentRecords(ctx, s.db, segments[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// Archive marks a segment as dispatched
func (s *PostgresStore) Archive(ctx context.Context, segment domain.Segment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_segments SET archived_at = $2 WHERE id = $1 AND archived_at IS NULL`,
		segment.ID, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive segment %s: %w", segment.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("segment %s is not pending", segment.Name)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func segmentRecords(ctx context.Context, q querier, segmentID uuid.UUID) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT domain FROM alerts WHERE segment_id = $1 ORDER BY observed_at ASC, id ASC`,
		segmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load segment records: %w", err)
	}
	defer rows.Close()

	records := make([]string, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
