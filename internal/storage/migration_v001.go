package storage

import (
	"context"
	"database/sql"
)

// migrateV001 creates the navigation statistics schema. Page and origin
// tables mirror each other; children reference their parent row.
func migrateV001(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		// ── Top-level loads ────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS top_level_pages (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			uri       TEXT NOT NULL,
			loads     INTEGER DEFAULT 0,
			last_load INTEGER DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS top_level_hosts (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			origin    TEXT NOT NULL,
			loads     INTEGER DEFAULT 0,
			last_load INTEGER DEFAULT 0
		)`,

		// ── Children ───────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS subresources (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			pid      INTEGER NOT NULL,
			uri      TEXT NOT NULL,
			hits     INTEGER DEFAULT 0,
			last_hit INTEGER DEFAULT 0,
			FOREIGN KEY(pid) REFERENCES top_level_pages(id)
		)`,

		`CREATE TABLE IF NOT EXISTS subhosts (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			hid      INTEGER NOT NULL,
			origin   TEXT NOT NULL,
			hits     INTEGER DEFAULT 0,
			last_hit INTEGER DEFAULT 0,
			FOREIGN KEY(hid) REFERENCES top_level_hosts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS redirects (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			pid      INTEGER NOT NULL,
			uri      TEXT NOT NULL,
			origin   TEXT NOT NULL,
			hits     INTEGER DEFAULT 0,
			last_hit INTEGER DEFAULT 0,
			FOREIGN KEY(pid) REFERENCES top_level_pages(id)
		)`,

		// ── Startup ────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS startup_pages (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			origin   TEXT NOT NULL,
			hits     INTEGER DEFAULT 0,
			last_hit INTEGER DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS startup_counter (
			startups     INTEGER,
			last_startup INTEGER
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_top_level_pages_uri    ON top_level_pages(uri)`,
		`CREATE INDEX IF NOT EXISTS idx_top_level_hosts_origin ON top_level_hosts(origin)`,
		`CREATE INDEX IF NOT EXISTS idx_subresources_pid_uri   ON subresources(pid, uri)`,
		`CREATE INDEX IF NOT EXISTS idx_subhosts_hid_origin    ON subhosts(hid, origin)`,
		`CREATE INDEX IF NOT EXISTS idx_redirects_pid_uri      ON redirects(pid, uri)`,
		`CREATE INDEX IF NOT EXISTS idx_startup_pages_origin   ON startup_pages(origin)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// resetOrder lists every data table, children before parents.
var resetOrder = []string{
	"subresources",
	"subhosts",
	"redirects",
	"top_level_pages",
	"top_level_hosts",
	"startup_pages",
	"startup_counter",
}
