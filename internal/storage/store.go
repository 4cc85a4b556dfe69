package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// axisTables names the parent and child tables behind one Axis.
type axisTables struct {
	parent      string
	parentKey   string
	child       string
	childParent string
	childKey    string
}

// axisQueries is the statement set generated from an axisTables.
type axisQueries struct {
	lookupTopLevel    string
	addTopLevel       string
	updateTopLevel    string
	lookupSubresource string
	addSubresource    string
	updateSubresource string
	subresources      string
}

var axes = [...]axisTables{
	AxisPage: {
		parent: "top_level_pages", parentKey: "uri",
		child: "subresources", childParent: "pid", childKey: "uri",
	},
	AxisOrigin: {
		parent: "top_level_hosts", parentKey: "origin",
		child: "subhosts", childParent: "hid", childKey: "origin",
	},
}

var queries = [...]axisQueries{
	AxisPage:   axes[AxisPage].queries(),
	AxisOrigin: axes[AxisOrigin].queries(),
}

func (t axisTables) queries() axisQueries {
	return axisQueries{
		lookupTopLevel: fmt.Sprintf(
			"SELECT id, loads, last_load FROM %s WHERE %s = ?", t.parent, t.parentKey),
		addTopLevel: fmt.Sprintf(
			"INSERT INTO %s (%s, loads, last_load) VALUES (?, 1, ?)", t.parent, t.parentKey),
		updateTopLevel: fmt.Sprintf(
			"UPDATE %s SET loads = ?, last_load = ? WHERE id = ?", t.parent),
		lookupSubresource: fmt.Sprintf(
			"SELECT id, hits, last_hit FROM %s WHERE %s = ? AND %s = ?", t.child, t.childParent, t.childKey),
		addSubresource: fmt.Sprintf(
			"INSERT INTO %s (%s, %s, hits, last_hit) VALUES (?, ?, 1, ?)", t.child, t.childParent, t.childKey),
		updateSubresource: fmt.Sprintf(
			"UPDATE %s SET hits = ?, last_hit = ? WHERE id = ?", t.child),
		subresources: fmt.Sprintf(
			"SELECT id, %s, %s, hits, last_hit FROM %s WHERE %s = ?", t.childParent, t.childKey, t.child, t.childParent),
	}
}

const (
	lookupRedirectSQL    = "SELECT id, origin, hits, last_hit FROM redirects WHERE pid = ? AND uri = ?"
	addRedirectSQL       = "INSERT INTO redirects (pid, uri, origin, hits, last_hit) VALUES (?, ?, ?, 1, ?)"
	updateRedirectSQL    = "UPDATE redirects SET hits = ?, last_hit = ? WHERE id = ?"
	redirectsSQL         = "SELECT id, pid, uri, origin, hits, last_hit FROM redirects WHERE pid = ?"
	lookupStartupPageSQL = "SELECT id, hits, last_hit FROM startup_pages WHERE origin = ?"
	addStartupPageSQL    = "INSERT INTO startup_pages (origin, hits, last_hit) VALUES (?, 1, ?)"
	updateStartupPageSQL = "UPDATE startup_pages SET hits = ?, last_hit = ? WHERE id = ?"
	startupPagesSQL      = "SELECT id, origin, hits, last_hit FROM startup_pages"
)

// Options tune how the database file is opened.
type Options struct {
	// Synchronous is the SQLite synchronous pragma (OFF, NORMAL, FULL).
	Synchronous string
}

// SQLiteStore holds aggregate navigation statistics.
//
// A SQLiteStore is not safe for concurrent use: one goroutine owns it for
// its whole lifetime, including the prepared-statement cache.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	stmts  map[string]*sql.Stmt
}

// Open opens (creating if needed) the database at path, runs migrations,
// and returns a store that owns the connection.
func Open(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if opts.Synchronous != "" {
		dsn += "&_synchronous=" + opts.Synchronous
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: the store has a single owner, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := NewMigrationRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := NewSQLiteStore(db)
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore wraps an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, stmts: make(map[string]*sql.Stmt)}
}

// stmt returns the cached prepared statement for query, preparing it on
// first use.
func (s *SQLiteStore) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if st, ok := s.stmts[query]; ok {
		return st, nil
	}
	st, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	s.stmts[query] = st
	return st, nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return err
	}
	_, err = st.ExecContext(ctx, args...)
	return err
}

// --- Top-level records ---

// LookupTopLevel finds the top-level record for key on the given axis.
// The bool is false when no row exists.
func (s *SQLiteStore) LookupTopLevel(ctx context.Context, axis Axis, key string) (TopLevelRecord, bool, error) {
	st, err := s.stmt(ctx, queries[axis].lookupTopLevel)
	if err != nil {
		return TopLevelRecord{}, false, err
	}

	rec := TopLevelRecord{Key: key}
	var loads, lastLoad int64
	err = st.QueryRowContext(ctx, key).Scan(&rec.ID, &loads, &lastLoad)
	if errors.Is(err, sql.ErrNoRows) {
		return TopLevelRecord{}, false, nil
	}
	if err != nil {
		return TopLevelRecord{}, false, fmt.Errorf("lookup %s: %w", axes[axis].parent, err)
	}

	rec.LoadCount = int(loads)
	rec.LastLoad = fromMicros(lastLoad)
	return rec, true, nil
}

// AddTopLevel inserts a top-level record with one load at now.
func (s *SQLiteStore) AddTopLevel(ctx context.Context, axis Axis, key string, now time.Time) error {
	if err := s.exec(ctx, queries[axis].addTopLevel, key, toMicros(now)); err != nil {
		return fmt.Errorf("add %s: %w", axes[axis].parent, err)
	}
	return nil
}

// UpdateTopLevel records one more load of rec at now.
func (s *SQLiteStore) UpdateTopLevel(ctx context.Context, axis Axis, rec TopLevelRecord, now time.Time) error {
	if err := s.exec(ctx, queries[axis].updateTopLevel, rec.LoadCount+1, toMicros(now), rec.ID); err != nil {
		return fmt.Errorf("update %s: %w", axes[axis].parent, err)
	}
	return nil
}

// --- Subresources ---

// LookupSubresource finds the child keyed by key under parentID.
func (s *SQLiteStore) LookupSubresource(ctx context.Context, axis Axis, parentID int64, key string) (SubresourceRecord, bool, error) {
	st, err := s.stmt(ctx, queries[axis].lookupSubresource)
	if err != nil {
		return SubresourceRecord{}, false, err
	}

	rec := SubresourceRecord{ParentID: parentID, Key: key}
	var hits, lastHit int64
	err = st.QueryRowContext(ctx, parentID, key).Scan(&rec.ID, &hits, &lastHit)
	if errors.Is(err, sql.ErrNoRows) {
		return SubresourceRecord{}, false, nil
	}
	if err != nil {
		return SubresourceRecord{}, false, fmt.Errorf("lookup %s: %w", axes[axis].child, err)
	}

	rec.HitCount = int(hits)
	rec.LastHit = fromMicros(lastHit)
	return rec, true, nil
}

// AddSubresource inserts a child of parentID with one hit at now.
func (s *SQLiteStore) AddSubresource(ctx context.Context, axis Axis, parentID int64, key string, now time.Time) error {
	if err := s.exec(ctx, queries[axis].addSubresource, parentID, key, toMicros(now)); err != nil {
		return fmt.Errorf("add %s: %w", axes[axis].child, err)
	}
	return nil
}

// UpdateSubresource records one more hit of rec at now.
func (s *SQLiteStore) UpdateSubresource(ctx context.Context, axis Axis, rec SubresourceRecord, now time.Time) error {
	if err := s.exec(ctx, queries[axis].updateSubresource, rec.HitCount+1, toMicros(now), rec.ID); err != nil {
		return fmt.Errorf("update %s: %w", axes[axis].child, err)
	}
	return nil
}

// Subresources yields every child of parentID. Each row is decoded on its
// own; a row that fails to decode is yielded as an error and the sequence
// continues.
func (s *SQLiteStore) Subresources(ctx context.Context, axis Axis, parentID int64) iter.Seq2[SubresourceRecord, error] {
	return scanRows(ctx, s, queries[axis].subresources, []any{parentID}, decodeSubresource)
}

// --- Redirects ---

// LookupRedirect finds the redirect from page pageID to uri.
func (s *SQLiteStore) LookupRedirect(ctx context.Context, pageID int64, uri string) (RedirectRecord, bool, error) {
	st, err := s.stmt(ctx, lookupRedirectSQL)
	if err != nil {
		return RedirectRecord{}, false, err
	}

	rec := RedirectRecord{ParentID: pageID, URI: uri}
	var hits, lastHit int64
	err = st.QueryRowContext(ctx, pageID, uri).Scan(&rec.ID, &rec.Origin, &hits, &lastHit)
	if errors.Is(err, sql.ErrNoRows) {
		return RedirectRecord{}, false, nil
	}
	if err != nil {
		return RedirectRecord{}, false, fmt.Errorf("lookup redirect: %w", err)
	}

	rec.HitCount = int(hits)
	rec.LastHit = fromMicros(lastHit)
	return rec, true, nil
}

// AddRedirect inserts a redirect from pageID to uri with one hit at now.
func (s *SQLiteStore) AddRedirect(ctx context.Context, pageID int64, uri, origin string, now time.Time) error {
	if err := s.exec(ctx, addRedirectSQL, pageID, uri, origin, toMicros(now)); err != nil {
		return fmt.Errorf("add redirect: %w", err)
	}
	return nil
}

// UpdateRedirect records one more hit of rec at now.
func (s *SQLiteStore) UpdateRedirect(ctx context.Context, rec RedirectRecord, now time.Time) error {
	if err := s.exec(ctx, updateRedirectSQL, rec.HitCount+1, toMicros(now), rec.ID); err != nil {
		return fmt.Errorf("update redirect: %w", err)
	}
	return nil
}

// Redirects yields every redirect known for pageID.
func (s *SQLiteStore) Redirects(ctx context.Context, pageID int64) iter.Seq2[RedirectRecord, error] {
	return scanRows(ctx, s, redirectsSQL, []any{pageID}, decodeRedirect)
}

// --- Startup ---

// LookupStartupPage finds the startup record for origin.
func (s *SQLiteStore) LookupStartupPage(ctx context.Context, origin string) (StartupPageRecord, bool, error) {
	st, err := s.stmt(ctx, lookupStartupPageSQL)
	if err != nil {
		return StartupPageRecord{}, false, err
	}

	rec := StartupPageRecord{Origin: origin}
	var hits, lastHit int64
	err = st.QueryRowContext(ctx, origin).Scan(&rec.ID, &hits, &lastHit)
	if errors.Is(err, sql.ErrNoRows) {
		return StartupPageRecord{}, false, nil
	}
	if err != nil {
		return StartupPageRecord{}, false, fmt.Errorf("lookup startup page: %w", err)
	}

	rec.HitCount = int(hits)
	rec.LastHit = fromMicros(lastHit)
	return rec, true, nil
}

// AddStartupPage inserts a startup record for origin with one hit at ts.
func (s *SQLiteStore) AddStartupPage(ctx context.Context, origin string, ts time.Time) error {
	if err := s.exec(ctx, addStartupPageSQL, origin, toMicros(ts)); err != nil {
		return fmt.Errorf("add startup page: %w", err)
	}
	return nil
}

// UpdateStartupPage records one more hit of rec at ts.
func (s *SQLiteStore) UpdateStartupPage(ctx context.Context, rec StartupPageRecord, ts time.Time) error {
	if err := s.exec(ctx, updateStartupPageSQL, rec.HitCount+1, toMicros(ts), rec.ID); err != nil {
		return fmt.Errorf("update startup page: %w", err)
	}
	return nil
}

// StartupPages yields every startup record.
func (s *SQLiteStore) StartupPages(ctx context.Context) iter.Seq2[StartupPageRecord, error] {
	return scanRows(ctx, s, startupPagesSQL, nil, decodeStartupPage)
}

// BumpStartupCounter counts one more process startup at now and returns the
// counter as it stood before, so the zero value means this is the first
// startup ever recorded.
func (s *SQLiteStore) BumpStartupCounter(ctx context.Context, now time.Time) (StartupCounter, error) {
	var count, last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT startups, last_startup FROM startup_counter LIMIT 1",
	).Scan(&count, &last)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO startup_counter (startups, last_startup) VALUES (1, ?)", toMicros(now),
		); err != nil {
			return StartupCounter{}, fmt.Errorf("insert startup counter: %w", err)
		}
		return StartupCounter{}, nil
	case err != nil:
		return StartupCounter{}, fmt.Errorf("read startup counter: %w", err)
	}

	prev := StartupCounter{Count: int(count.Int64), LastStartup: fromMicros(last.Int64)}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE startup_counter SET startups = ?, last_startup = ?", prev.Count+1, toMicros(now),
	); err != nil {
		return StartupCounter{}, fmt.Errorf("update startup counter: %w", err)
	}
	return prev, nil
}

// --- Maintenance ---

// StartupCounter reads the counter without changing it. The zero value
// means no startup has been recorded.
func (s *SQLiteStore) StartupCounter(ctx context.Context) (StartupCounter, error) {
	var count, last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT startups, last_startup FROM startup_counter LIMIT 1",
	).Scan(&count, &last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return StartupCounter{}, nil
	case err != nil:
		return StartupCounter{}, fmt.Errorf("read startup counter: %w", err)
	}
	return StartupCounter{Count: int(count.Int64), LastStartup: fromMicros(last.Int64)}, nil
}

// Reset deletes every row of every table in one transaction.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range resetOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// GetStats returns row counts for every table and the startup counter.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	for _, table := range resetOrder {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats.Tables = append(stats.Tables, TableCount{Table: table, Rows: n})
	}

	counter, err := s.StartupCounter(ctx)
	if err != nil {
		return nil, err
	}
	stats.Startups = counter

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	return stats, nil
}

// Close finalizes all cached statements, and closes the database when the
// store opened it.
func (s *SQLiteStore) Close() error {
	for q, st := range s.stmts {
		st.Close()
		delete(s.stmts, q)
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
