// Package cache persists the console's slowly-changing side state:
// the confirmed-mint id set, the resolved planter-name map, and the
// operator audit log. Reads never fail — a missing or corrupted entry
// degrades to the empty value so a broken cache can't take down a
// session load.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/pkg/idgen"
	_ "modernc.org/sqlite"
)

// Store wraps the console.db SQLite database.
type Store struct {
	*sql.DB
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}

	s := &Store{sqlDB}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating cache database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.Exec(schema)
	return err
}

const schema = `
-- Tree ids with a confirmed minted token (append-only)
CREATE TABLE IF NOT EXISTS minted_ids (
    tree_id    TEXT PRIMARY KEY,
    added_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

-- Resolved planter display names keyed by ledger id (append-only)
CREATE TABLE IF NOT EXISTS planter_names (
    ledger_id    TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    resolved_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

-- Operator actions applied through the mutation coordinator
CREATE TABLE IF NOT EXISTS audit_log (
    id        TEXT PRIMARY KEY,
    action    TEXT NOT NULL,
    tree_id   TEXT NOT NULL,
    operator  TEXT NOT NULL,
    detail    TEXT,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(timestamp);
`

// MintedIDs returns the confirmed-mint id set. Any query failure
// yields an empty set, never an error.
func (s *Store) MintedIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	rows, err := s.Query(`SELECT tree_id FROM minted_ids`)
	if err != nil {
		return ids
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// AddMinted records a tree id as having a confirmed minted token.
func (s *Store) AddMinted(treeID string) error {
	_, err := s.Exec(`INSERT OR IGNORE INTO minted_ids (tree_id) VALUES (?)`, treeID)
	if err != nil {
		return fmt.Errorf("adding minted id: %w", err)
	}
	return nil
}

// PlanterNames returns the resolved-name map. Any query failure yields
// an empty map, never an error.
func (s *Store) PlanterNames() map[string]string {
	names := make(map[string]string)
	rows, err := s.Query(`SELECT ledger_id, display_name FROM planter_names`)
	if err != nil {
		return names
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			continue
		}
		names[id] = name
	}
	return names
}

// PutPlanterNames merges newly resolved names into the cache. Existing
// entries are overwritten; the map is never evicted.
func (s *Store) PutPlanterNames(names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("writing planter names: %w", err)
	}
	for id, name := range names {
		if _, err := tx.Exec(`INSERT INTO planter_names (ledger_id, display_name) VALUES (?, ?)
			ON CONFLICT(ledger_id) DO UPDATE SET display_name = excluded.display_name`, id, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing planter name %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// AuditEntry is one recorded operator action.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	TreeID    string    `json:"tree_id"`
	Operator  string    `json:"operator"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendAudit records an operator action. Failures are swallowed: the
// audit log is best-effort and never blocks a mutation.
func (s *Store) AppendAudit(action, treeID, operator, detail string) {
	_, _ = s.Exec(`INSERT INTO audit_log (id, action, tree_id, operator, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`, idgen.New(), action, treeID, operator, detail, time.Now().Unix())
}

// RecentAudit returns the most recent operator actions, newest first.
func (s *Store) RecentAudit(limit int) []AuditEntry {
	if limit <= 0 {
		limit = 50
	}
	entries := []AuditEntry{}
	rows, err := s.Query(`SELECT id, action, tree_id, operator, COALESCE(detail, ''), timestamp
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return entries
	}
	defer rows.Close()
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.Action, &e.TreeID, &e.Operator, &e.Detail, &ts); err != nil {
			continue
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries
}

// ClearAll wipes both caches and the audit log. Manual reset only.
func (s *Store) ClearAll() error {
	for _, stmt := range []string{
		`DELETE FROM minted_ids`,
		`DELETE FROM planter_names`,
		`DELETE FROM audit_log`,
	} {
		if _, err := s.Exec(stmt); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}
	return nil
}
