package telemetry

import (
	"database/sql"
	"fmt"
)

// MetricsStore persists flushed resolver metrics.
type MetricsStore interface {
	// SaveOutcomeCounts adds per-outcome item counts to the given day.
	SaveOutcomeCounts(date string, counts map[string]int64) error

	// GetOutcomeCounts sums outcome counts over an inclusive date range.
	GetOutcomeCounts(from, to string) (map[string]int64, error)

	// SaveLatencyCounts adds provider latency histogram counts to the given day.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts sums latency counts over an inclusive date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	// UpsertNotFoundCounts adds to the running count of unresolved queries.
	UpsertNotFoundCounts(queries map[string]int64) error

	// GetTopNotFound returns the most frequent unresolved queries.
	GetTopNotFound(limit int) ([]QueryCount, error)
}

// SQLiteMetricsStore implements MetricsStore using SQLite. It shares the
// database of the known-address store and never closes it.
type SQLiteMetricsStore struct {
	db *sql.DB
}

// NewSQLiteMetricsStore creates the store and its tables.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := InitTelemetrySchema(db); err != nil {
		return nil, err
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// InitTelemetrySchema creates the telemetry tables if they don't exist.
func InitTelemetrySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolve_outcome_stats (
		date TEXT NOT NULL,
		outcome TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, outcome)
	);

	CREATE TABLE IF NOT EXISTS resolve_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	CREATE TABLE IF NOT EXISTS resolve_not_found (
		query TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_resolve_not_found_count ON resolve_not_found(count DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

func (s *SQLiteMetricsStore) addDaily(table, column, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// table and column come from this file only
	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (date, %s, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, %s) DO UPDATE SET count = count + excluded.count
	`, table, column, column))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for k, count := range counts {
		if _, err := stmt.Exec(date, k, count); err != nil {
			return fmt.Errorf("insert %s count: %w", column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteMetricsStore) sumDaily(table, column, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s, SUM(count) AS total
		FROM %s
		WHERE date >= ? AND date <= ?
		GROUP BY %s
	`, column, table, column), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var k string
		var count int64
		if err := rows.Scan(&k, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[k] = count
	}
	return counts, rows.Err()
}

// SaveOutcomeCounts implements MetricsStore.
func (s *SQLiteMetricsStore) SaveOutcomeCounts(date string, counts map[string]int64) error {
	return s.addDaily("resolve_outcome_stats", "outcome", date, counts)
}

// GetOutcomeCounts implements MetricsStore.
func (s *SQLiteMetricsStore) GetOutcomeCounts(from, to string) (map[string]int64, error) {
	return s.sumDaily("resolve_outcome_stats", "outcome", from, to)
}

// SaveLatencyCounts implements MetricsStore.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	byName := make(map[string]int64, len(counts))
	for b, n := range counts {
		byName[string(b)] = n
	}
	return s.addDaily("resolve_latency_stats", "bucket", date, byName)
}

// GetLatencyCounts implements MetricsStore.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	byName, err := s.sumDaily("resolve_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(byName))
	for b, n := range byName {
		counts[LatencyBucket(b)] = n
	}
	return counts, nil
}

// UpsertNotFoundCounts implements MetricsStore.
func (s *SQLiteMetricsStore) UpsertNotFoundCounts(queries map[string]int64) error {
	if len(queries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO resolve_not_found (query, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(query) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for q, count := range queries {
		if _, err := stmt.Exec(q, count); err != nil {
			return fmt.Errorf("upsert not-found count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTopNotFound implements MetricsStore.
func (s *SQLiteMetricsStore) GetTopNotFound(limit int) ([]QueryCount, error) {
	rows, err := s.db.Query(`
		SELECT query, count
		FROM resolve_not_found
		ORDER BY count DESC, query ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top not-found: %w", err)
	}
	defer rows.Close()

	var out []QueryCount
	for rows.Next() {
		var qc QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, qc)
	}
	return out, rows.Err()
}
