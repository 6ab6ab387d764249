package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// IgnoredHostnamesKey is the settings key holding the ignore list.
const IgnoredHostnamesKey = "ignoredHostnames"

// DatabaseFile is the name of the settings database inside its directory.
const DatabaseFile = "deamp.db"

// Store is a SQLite-backed settings store.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	logger *slog.Logger

	// notifyMu is held from a change until its subscribers have been
	// called, so notifications arrive in commit order. It is taken before mu.
	notifyMu sync.Mutex

	// mu serializes read-modify-write cycles and guards last.
	mu sync.Mutex

	// last is the ignore list most recently written or observed.
	last []string

	subMu       sync.Mutex
	subscribers map[uint64]func([]string)
	nextSub     uint64
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that other processes can
	// read while a write is in progress.
	EnableWAL bool

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the settings database in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps PRAGMA data_version meaningful for Watch.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:          db,
		dbPath:      dbPath,
		logger:      opts.Logger,
		subscribers: make(map[uint64]func([]string)),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readList reads the ignore list. A missing row is an empty list.
func readList(ctx context.Context, q querier) ([]string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, IgnoredHostnamesKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoredHostnamesKey, err)
	}

	var list []string
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", IgnoredHostnamesKey, err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// IgnoredHostnames returns the stored ignore list.
func (s *Store) IgnoredHostnames(ctx context.Context) ([]string, error) {
	list, err := readList(ctx, s.db)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.last == nil {
		s.last = slices.Clone(list)
	}
	s.mu.Unlock()

	return list, nil
}

// SetIgnoredHostnames replaces the ignore list.
func (s *Store) SetIgnoredHostnames(ctx context.Context, hosts []string) error {
	list := NormalizeHostnames(hosts)
	_, err := s.update(ctx, func([]string) []string { return list })
	return err
}

// AddIgnoredHostname appends host to the ignore list unless it is already
// present. It returns the resulting list.
func (s *Store) AddIgnoredHostname(ctx context.Context, host string) ([]string, error) {
	normalized, err := NormalizeHostname(host)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, func(current []string) []string {
		if slices.Contains(current, normalized) {
			return current
		}
		return append(slices.Clone(current), normalized)
	})
}

// RemoveIgnoredHostname removes host from the ignore list. It returns the
// resulting list.
func (s *Store) RemoveIgnoredHostname(ctx context.Context, host string) ([]string, error) {
	normalized, err := NormalizeHostname(host)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, func(current []string) []string {
		return slices.DeleteFunc(slices.Clone(current), func(h string) bool { return h == normalized })
	})
}

// ClearIgnoredHostnames empties the ignore list.
func (s *Store) ClearIgnoredHostnames(ctx context.Context) error {
	_, err := s.update(ctx, func([]string) []string { return []string{} })
	return err
}

// UpdatedAt returns when the ignore list was last written, or the zero
// time if it never was.
func (s *Store) UpdatedAt(ctx context.Context) (time.Time, error) {
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM settings WHERE key = ?`, IgnoredHostnamesKey).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read update time: %w", err)
	}
	return parseTimestamp(updated), nil
}

// update applies fn to the stored list inside a transaction and notifies
// subscribers when the list changed.
func (s *Store) update(ctx context.Context, fn func(current []string) []string) ([]string, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	list, changed, err := s.write(ctx, fn)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(list)
	}
	return list, nil
}

func (s *Store) write(ctx context.Context, fn func(current []string) []string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := readList(ctx, tx)
	if err != nil {
		return nil, false, err
	}

	list := fn(current)
	if list == nil {
		list = []string{}
	}
	if slices.Equal(current, list) {
		s.last = current
		return current, false, nil
	}

	encoded, err := json.Marshal(list)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode %s: %w", IgnoredHostnamesKey, err)
	}

	query := `
	INSERT INTO settings (key, value, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, IgnoredHostnamesKey, string(encoded)); err != nil {
		return nil, false, fmt.Errorf("failed to write %s: %w", IgnoredHostnamesKey, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit %s: %w", IgnoredHostnamesKey, err)
	}

	s.last = slices.Clone(list)
	s.logger.Debug("ignore list updated", "hostnames", list)
	return list, true, nil
}

// OnIgnoredHostnamesChanged registers fn to be called with the new list
// after every change. fn is never called for writes that leave the list
// as it was, and must not write to the store. The returned function
// deregisters fn.
func (s *Store) OnIgnoredHostnamesChanged(fn func([]string)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// notify calls every subscriber with its own copy of list.
func (s *Store) notify(list []string) {
	s.subMu.Lock()
	ids := make([]uint64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func([]string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(list))
	}
}

// Watch polls for changes committed by other processes every interval and
// notifies subscribers. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	version, err := s.dataVersion(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current, err := s.dataVersion(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if current == version {
			continue
		}
		version = current

		if err := s.reload(ctx); err != nil {
			s.logger.Warn("failed to reload ignore list", "error", err)
		}
	}
}

// reload reads the list and notifies subscribers if it differs from the
// last one seen.
func (s *Store) reload(ctx context.Context) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	list, err := readList(ctx, s.db)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := !slices.Equal(s.last, list)
	s.last = slices.Clone(list)
	s.mu.Unlock()

	if changed {
		s.logger.Debug("ignore list changed externally", "hostnames", list)
		s.notify(list)
	}
	return nil
}

// dataVersion returns SQLite's data_version for the store's connection.
// It changes whenever another connection commits.
func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data_version: %w", err)
	}
	return v, nil
}

// timestampFormats lists the formats SQLite returns DATETIME values in.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses s with the first matching format, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
