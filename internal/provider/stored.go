package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

// StoredName is the registered name of the known-address store provider.
const StoredName = "stored"

const storeSchemaVersion = 1

// Store persists previously confirmed addresses keyed by tenant and
// normalized query text. Tenant "" is the shared namespace every tenant
// falls back to.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// StoredEntry is one row of the known-address table.
type StoredEntry struct {
	TenantID  string
	Query     string
	Address   address.Address
	Overrides map[string]string
	UpdatedAt time.Time
}

// OpenStore opens (creating if needed) the SQLite store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, rerrors.StorageError("create store directory", err)
	}
	if err := checkStoreIntegrity(path); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeFileCorrupt, "known-address store is corrupt", err).
			WithDetail("path", path).
			WithSuggestion("Remove the file and re-import it with 'addresolve store import'")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, rerrors.StorageError("open store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc ignores most DSN parameters
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rerrors.StorageError("set pragma", err)
		}
	}

	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

func checkStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

// NewStore wraps an open database and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, rerrors.StorageError("initialize store schema", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS known_addresses (
		tenant_id  TEXT NOT NULL,
		query_norm TEXT NOT NULL,
		address    TEXT NOT NULL,
		overrides  TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, query_norm)
	);

	CREATE INDEX IF NOT EXISTS idx_known_addresses_updated ON known_addresses(updated_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", storeSchemaVersion)
	return err
}

// DB returns the underlying database so other tables (telemetry) can share
// the file and its single connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, empty for stores built with NewStore.
func (s *Store) Path() string {
	return s.path
}

// Save upserts addr under its value and every alias for tenant.
func (s *Store) Save(ctx context.Context, tenant string, addr address.Address, aliases []string, overrides map[string]string) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	stored := addr.Clone()
	stored.Overridden = nil
	stored.OverrideHistory = nil
	stored.UnitType = ""
	stored.UnitName = ""
	stored.Provider = ""

	data, err := json.Marshal(stored)
	if err != nil {
		return rerrors.InternalError("encode address", err)
	}
	if overrides == nil {
		overrides = map[string]string{}
	}
	ov, err := json.Marshal(overrides)
	if err != nil {
		return rerrors.InternalError("encode overrides", err)
	}

	keys := make(map[string]struct{}, len(aliases)+1)
	for _, q := range append([]string{addr.Value}, aliases...) {
		if n := NormalizeQuery(q); n != "" {
			keys[n] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rerrors.New(rerrors.ErrCodeStoreUnavailable, "store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rerrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO known_addresses (tenant_id, query_norm, address, overrides, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, query_norm) DO UPDATE SET
			address = excluded.address,
			overrides = excluded.overrides,
			updated_at = excluded.updated_at`)
	if err != nil {
		return rerrors.StorageError("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for q := range keys {
		if _, err := stmt.ExecContext(ctx, tenant, q, string(data), string(ov), now); err != nil {
			return rerrors.StorageError("upsert known address", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return rerrors.StorageError("commit", err)
	}
	return nil
}

// Lookup finds query for tenant, then in the shared namespace.
// It returns nil, nil when neither has it.
func (s *Store) Lookup(ctx context.Context, tenant, query string) (*StoredEntry, error) {
	q := NormalizeQuery(query)
	if q == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, rerrors.New(rerrors.ErrCodeStoreUnavailable, "store is closed", nil)
	}

	tenants := []string{tenant}
	if tenant != "" {
		tenants = append(tenants, "")
	}
	for _, t := range tenants {
		entry, err := s.lookup(ctx, t, q)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, nil
}

func (s *Store) lookup(ctx context.Context, tenant, q string) (*StoredEntry, error) {
	var data, ov string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT address, overrides, updated_at FROM known_addresses WHERE tenant_id = ? AND query_norm = ?`,
		tenant, q).Scan(&data, &ov, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.StorageError("query known address", err)
	}

	entry := &StoredEntry{TenantID: tenant, Query: q, UpdatedAt: time.Unix(updated, 0)}
	if err := json.Unmarshal([]byte(data), &entry.Address); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeMalformedResponse, "decode stored address", err).
			WithDetail("query", q)
	}
	if err := json.Unmarshal([]byte(ov), &entry.Overrides); err != nil {
		slog.Warn("stored_overrides_unreadable",
			slog.String("query", q),
			slog.String("error", err.Error()))
		entry.Overrides = nil
	}
	if len(entry.Overrides) == 0 {
		entry.Overrides = nil
	}
	return entry, nil
}

// Delete removes query from tenant's namespace. It reports whether a row
// was removed.
func (s *Store) Delete(ctx context.Context, tenant, query string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, rerrors.New(rerrors.ErrCodeStoreUnavailable, "store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM known_addresses WHERE tenant_id = ? AND query_norm = ?`,
		tenant, NormalizeQuery(query))
	if err != nil {
		return false, rerrors.StorageError("delete known address", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Count returns the number of stored query keys across all tenants.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, rerrors.New(rerrors.ErrCodeStoreUnavailable, "store is closed", nil)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM known_addresses`).Scan(&n); err != nil {
		return 0, rerrors.StorageError("count known addresses", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// NormalizeQuery folds case, drops punctuation, and collapses whitespace so
// trivially different spellings of one query share a key.
func NormalizeQuery(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == 'ё':
			b.WriteRune('е')
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Stored serves addresses from a Store. It is enabled for every item.
type Stored struct {
	store *Store
}

// NewStored creates the stored provider.
func NewStored(store *Store) *Stored {
	return &Stored{store: store}
}

// Name implements Provider.
func (p *Stored) Name() string { return StoredName }

// IsEnabled implements Provider.
func (p *Stored) IsEnabled(string, Scope) bool { return true }

// Prepare implements Provider.
func (p *Stored) Prepare(_ context.Context, scope Scope) (Searcher, error) {
	tenant := scope.TenantID
	return SearcherFunc(func(ctx context.Context, query string) (*Result, error) {
		entry, err := p.store.Lookup(ctx, tenant, query)
		if err != nil || entry == nil {
			return nil, err
		}
		return &Result{Provider: StoredName, Raw: entry, Overrides: entry.Overrides}, nil
	}), nil
}

// Normalize implements Provider.
func (p *Stored) Normalize(res *Result) []address.Address {
	if res == nil {
		return nil
	}
	entry, ok := res.Raw.(*StoredEntry)
	if !ok || entry == nil {
		return nil
	}
	a := entry.Address.Clone()
	a.Provider = StoredName
	return address.Filter([]address.Address{a})
}
