// Package history records every investigation run in a local SQLite
// database, with full-text search over the saved reports.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	schemaVersion = 1
	maxFTSTokens  = 16
	defaultLimit  = 20

	// Fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Run is one investigation. Report holds the markdown for successful runs;
// Snippet is only filled by Search.
type Run struct {
	ID         int64
	SessionID  string
	Company    string
	Ticker     string
	ReportPath string
	Status     string
	Error      string
	ToolCalls  int
	StartedAt  time.Time
	FinishedAt time.Time
	Report     string
	Snippet    string
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL,
			ticker TEXT NOT NULL DEFAULT '',
			report_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			tool_calls INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			report TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_company ON runs(company COLLATE NOCASE, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS runs_fts USING fts5(
			company,
			report,
			content='runs',
			content_rowid='id',
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS runs_ai AFTER INSERT ON runs BEGIN
			INSERT INTO runs_fts(rowid, company, report) VALUES (new.id, new.company, new.report);
		END`,
		`CREATE TRIGGER IF NOT EXISTS runs_ad AFTER DELETE ON runs BEGIN
			INSERT INTO runs_fts(runs_fts, rowid, company, report) VALUES('delete', old.id, old.company, old.report);
		END`,
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Record inserts run and returns its ID.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	company := strings.TrimSpace(run.Company)
	if company == "" {
		return 0, fmt.Errorf("record run: company is empty")
	}
	status := run.Status
	if status == "" {
		status = StatusOK
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (session_id, company, ticker, report_path, status, error, tool_calls,
		                  started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, company, strings.ToUpper(strings.TrimSpace(run.Ticker)), run.ReportPath,
		status, run.Error, run.ToolCalls, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Report)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// Get loads one run including its report.
func (s *Store) Get(ctx context.Context, id int64) (Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, company, ticker, report_path, status, error, tool_calls,
		       started_at, finished_at, report
		FROM runs WHERE id = ?
	`, id)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows, true, false)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("run %d not found", id)
	}
	return runs[0], nil
}

// Recent lists the newest runs first, without report bodies. A non-empty
// company restricts the list to that company, case-insensitively.
func (s *Store) Recent(ctx context.Context, company string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	company = strings.TrimSpace(company)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, company, ticker, report_path, status, error, tool_calls,
		       started_at, finished_at
		FROM runs
		WHERE ? = '' OR company = ? COLLATE NOCASE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, company, company, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows, false, false)
}

// Search finds successful runs whose company or report matches any of the
// query terms, best match first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	match := buildFTSMatchQuery(strings.Fields(query))
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.company, r.ticker, r.report_path, r.status, r.error, r.tool_calls,
		       r.started_at, r.finished_at,
		       snippet(runs_fts, 1, '[', ']', '...', 12)
		FROM runs r
		JOIN runs_fts f ON r.id = f.rowid
		WHERE runs_fts MATCH ?
		  AND r.status = ?
		ORDER BY bm25(runs_fts), r.started_at DESC
		LIMIT ?
	`, match, StatusOK, limit)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows, false, true)
}

func scanRuns(rows *sql.Rows, withReport, withSnippet bool) ([]Run, error) {
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		dest := []any{&r.ID, &r.SessionID, &r.Company, &r.Ticker, &r.ReportPath, &r.Status,
			&r.Error, &r.ToolCalls, &started, &finished}
		if withReport {
			dest = append(dest, &r.Report)
		}
		if withSnippet {
			dest = append(dest, &r.Snippet)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// buildFTSMatchQuery quotes every usable term so user input can never be
// read as FTS5 syntax. Terms are ORed.
func buildFTSMatchQuery(tokens []string) string {
	reserved := map[string]struct{}{"and": {}, "or": {}, "not": {}, "near": {}}
	seen := make(map[string]struct{}, len(tokens))
	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		for _, part := range strings.Fields(normalizeToken(token)) {
			if _, blocked := reserved[part]; blocked {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			quoted = append(quoted, `"`+part+`"`)
			if len(quoted) == maxFTSTokens {
				return strings.Join(quoted, " OR ")
			}
		}
	}
	return strings.Join(quoted, " OR ")
}

// normalizeToken lower-cases token and replaces everything but letters and
// digits with spaces.
func normalizeToken(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range strings.ToLower(token) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
