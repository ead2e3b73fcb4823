// Package store implements tapestry's persistent project memory.
//
// It uses SQLite with FTS5 full-text search to track sessions, tasks,
// sidequests, theme flows, per-file metadata and Git branch snapshots for a
// single project. The database lives inside the project's .tapestry
// directory so memory travels with the checkout.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"tapestry/internal/config"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrInvalidTransition is returned when a status change is not allowed by
// the task or sidequest state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// ─── Status Enums ─────────────────────────────────────────────────────────────

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskPending:    true,
	TaskInProgress: true,
	TaskBlocked:    true,
	TaskCompleted:  true,
}

// taskTransitions defines the allowed moves. Completed is terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress},
	TaskInProgress: {TaskBlocked, TaskCompleted},
	TaskBlocked:    {TaskInProgress},
	TaskCompleted:  {},
}

// ValidateTaskStatus parses a raw status string.
func ValidateTaskStatus(raw string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !validTaskStatuses[st] {
		return "", fmt.Errorf("unknown task status %q (valid: pending, in-progress, blocked, completed)", raw)
	}
	return st, nil
}

func canTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SidequestStatus tracks a sidequest. Unlike tasks, sidequests may be
// abandoned: they are bounded detours, not commitments.
type SidequestStatus string

const (
	SidequestPending    SidequestStatus = "pending"
	SidequestInProgress SidequestStatus = "in-progress"
	SidequestCompleted  SidequestStatus = "completed"
	SidequestAbandoned  SidequestStatus = "abandoned"
)

var validSidequestStatuses = map[SidequestStatus]bool{
	SidequestPending:    true,
	SidequestInProgress: true,
	SidequestCompleted:  true,
	SidequestAbandoned:  true,
}

// ValidateSidequestStatus parses a raw status string.
func ValidateSidequestStatus(raw string) (SidequestStatus, error) {
	st := SidequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !validSidequestStatuses[st] {
		return "", fmt.Errorf("unknown sidequest status %q (valid: pending, in-progress, completed, abandoned)", raw)
	}
	return st, nil
}

// FlowStatus tracks a theme flow.
type FlowStatus string

const (
	FlowPending    FlowStatus = "pending"
	FlowInProgress FlowStatus = "in-progress"
	FlowComplete   FlowStatus = "complete"
)

var validFlowStatuses = map[FlowStatus]bool{
	FlowPending:    true,
	FlowInProgress: true,
	FlowComplete:   true,
}

// ValidateFlowStatus parses a raw status string.
func ValidateFlowStatus(raw string) (FlowStatus, error) {
	st := FlowStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !validFlowStatuses[st] {
		return "", fmt.Errorf("unknown flow status %q (valid: pending, in-progress, complete)", raw)
	}
	return st, nil
}

// ─── Types ────────────────────────────────────────────────────────────────────

// Session represents one working session against the project.
type Session struct {
	ID          string  `json:"id"`
	Project     string  `json:"project"`
	Directory   string  `json:"directory"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at,omitempty"`
	Summary     *string `json:"summary,omitempty"`
	ContextMode *string `json:"context_mode,omitempty"`
	ActiveTheme *string `json:"active_theme,omitempty"`
}

// SessionSummary is a compact session view with its task count.
type SessionSummary struct {
	ID        string  `json:"id"`
	Project   string  `json:"project"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Summary   *string `json:"summary,omitempty"`
	TaskCount int     `json:"task_count"`
}

// Escalation records one context-mode escalation within a session.
type Escalation struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	FromMode  string `json:"from_mode"`
	ToMode    string `json:"to_mode"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Task is a unit of work, optionally tied to a theme and a session.
type Task struct {
	ID          int64      `json:"id"`
	SessionID   *string    `json:"session_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Theme       *string    `json:"theme,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	CompletedAt *string    `json:"completed_at,omitempty"`
}

// TaskSearchResult embeds a Task with its FTS5 rank.
type TaskSearchResult struct {
	Task
	Rank float64 `json:"rank"`
}

// CreateTaskParams holds the input for creating a task.
type CreateTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Theme       string `json:"theme,omitempty"`
	Priority    string `json:"priority,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// TaskListOptions filters ListTasks.
type TaskListOptions struct {
	Theme  string `json:"theme,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Sidequest is a bounded detour spawned from a parent task.
type Sidequest struct {
	ID          int64           `json:"id"`
	TaskID      int64           `json:"task_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      SidequestStatus `json:"status"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	CompletedAt *string         `json:"completed_at,omitempty"`
}

// Flow is one named workflow attached to a theme.
type Flow struct {
	ID        int64      `json:"id"`
	Theme     string     `json:"theme"`
	Name      string     `json:"name"`
	Status    FlowStatus `json:"status"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// FileMeta carries per-file facts written back by analysis and touched by
// modification tracking.
type FileMeta struct {
	Path              string  `json:"path"`
	Language          string  `json:"language,omitempty"`
	Category          string  `json:"category,omitempty"`
	ModificationCount int     `json:"modification_count"`
	ImportCount       int     `json:"import_count"`
	ExportCount       int     `json:"export_count"`
	LastModifiedAt    *string `json:"last_modified_at,omitempty"`
	LastAnalyzed      *string `json:"last_analyzed,omitempty"`
}

// DirMeta is a stored directory description, preferred over on-disk README
// content when both exist.
type DirMeta struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
}

// BranchSnapshot is one recorded Git branch state.
type BranchSnapshot struct {
	ID         int64  `json:"id"`
	Branch     string `json:"branch"`
	Head       string `json:"head"`
	Dirty      bool   `json:"dirty"`
	RecordedAt string `json:"recorded_at"`
}

// Stats holds aggregate project-memory statistics.
type Stats struct {
	TotalSessions   int `json:"total_sessions"`
	TotalTasks      int `json:"total_tasks"`
	OpenTasks       int `json:"open_tasks"`
	TotalSidequests int `json:"total_sidequests"`
	TotalFlows      int `json:"total_flows"`
	TrackedFiles    int `json:"tracked_files"`
}

// ─── Config ───────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	ProjectRoot      string
	MaxSearchResults int
	MaxListResults   int
}

// DefaultConfig returns the default configuration for a project root.
func DefaultConfig(projectRoot string) Config {
	return Config{
		ProjectRoot:      projectRoot,
		MaxSearchResults: 20,
		MaxListResults:   50,
	}
}

// ─── Store ────────────────────────────────────────────────────────────────────

// Store is the SQLite-backed project memory.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	query   func(db queryer, query string, args ...any) (*sql.Rows, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	if s.hooks.query != nil {
		rows, err := s.hooks.query(db, query, args...)
		if err != nil {
			return nil, err
		}
		return sqlRowScanner{rows: rows}, nil
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New opens (or creates) the project database, applies the SQLite pragmas
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(config.Dir(cfg.ProjectRoot), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", config.DBPath(cfg.ProjectRoot))
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			project      TEXT NOT NULL,
			directory    TEXT NOT NULL,
			started_at   TEXT NOT NULL DEFAULT (datetime('now')),
			ended_at     TEXT,
			summary      TEXT,
			context_mode TEXT,
			active_theme TEXT
		);

		CREATE TABLE IF NOT EXISTS context_escalations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT    NOT NULL,
			from_mode  TEXT    NOT NULL,
			to_mode    TEXT    NOT NULL,
			reason     TEXT,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_escalations_session ON context_escalations(session_id);

		CREATE TABLE IF NOT EXISTS tasks (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT,
			title        TEXT    NOT NULL,
			description  TEXT    NOT NULL DEFAULT '',
			theme        TEXT,
			status       TEXT    NOT NULL DEFAULT 'pending',
			priority     TEXT    NOT NULL DEFAULT 'medium',
			created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT    NOT NULL DEFAULT (datetime('now')),
			completed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_theme   ON tasks(theme);
		CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			title,
			description,
			content='tasks',
			content_rowid='id'
		);

		CREATE TABLE IF NOT EXISTS sidequests (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id      INTEGER NOT NULL,
			title        TEXT    NOT NULL,
			description  TEXT    NOT NULL DEFAULT '',
			status       TEXT    NOT NULL DEFAULT 'pending',
			created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT    NOT NULL DEFAULT (datetime('now')),
			completed_at TEXT,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sidequests_task ON sidequests(task_id);

		CREATE TABLE IF NOT EXISTS flows (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			theme      TEXT NOT NULL,
			name       TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_flows_theme_name ON flows(theme, name);

		CREATE TABLE IF NOT EXISTS file_meta (
			path               TEXT PRIMARY KEY,
			language           TEXT,
			category           TEXT,
			modification_count INTEGER NOT NULL DEFAULT 0,
			import_count       INTEGER NOT NULL DEFAULT 0,
			export_count       INTEGER NOT NULL DEFAULT 0,
			last_modified_at   TEXT,
			last_analyzed      TEXT
		);

		CREATE TABLE IF NOT EXISTS file_links (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			source     TEXT NOT NULL,
			target     TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_links_edge   ON file_links(source, target);
		CREATE INDEX IF NOT EXISTS idx_links_target ON file_links(target);

		CREATE TABLE IF NOT EXISTS dir_meta (
			path        TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS branch_snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			branch      TEXT NOT NULL,
			head        TEXT NOT NULL,
			dirty       INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return err
	}

	// Normalize existing data
	_, _ = s.execHook(s.db, `UPDATE tasks SET status = 'pending' WHERE status IS NULL OR status = ''`)        // best-effort migration cleanup
	_, _ = s.execHook(s.db, `UPDATE tasks SET priority = 'medium' WHERE priority IS NULL OR priority = ''`)   // best-effort migration cleanup
	_, _ = s.execHook(s.db, `UPDATE sidequests SET status = 'pending' WHERE status IS NULL OR status = ''`)   // best-effort migration cleanup
	_, _ = s.execHook(s.db, `UPDATE file_meta SET modification_count = 0 WHERE modification_count IS NULL`)   // best-effort migration cleanup

	// Create FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='task_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER task_fts_insert AFTER INSERT ON tasks BEGIN
				INSERT INTO tasks_fts(rowid, title, description)
				VALUES (new.id, new.title, new.description);
			END;

			CREATE TRIGGER task_fts_delete AFTER DELETE ON tasks BEGIN
				INSERT INTO tasks_fts(tasks_fts, rowid, title, description)
				VALUES ('delete', old.id, old.title, old.description);
			END;

			CREATE TRIGGER task_fts_update AFTER UPDATE ON tasks BEGIN
				INSERT INTO tasks_fts(tasks_fts, rowid, title, description)
				VALUES ('delete', old.id, old.title, old.description);
				INSERT INTO tasks_fts(rowid, title, description)
				VALUES (new.id, new.title, new.description);
			END;
		`
		if _, err := s.execHook(s.db, triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// StartSession registers a new working session.
func (s *Store) StartSession(id, project, directory string) error {
	_, err := s.execHook(s.db,
		`INSERT OR IGNORE INTO sessions (id, project, directory) VALUES (?, ?, ?)`,
		id, project, directory,
	)
	return err
}

// EndSession marks a session as completed with an optional summary.
func (s *Store) EndSession(id, summary string) error {
	_, err := s.execHook(s.db,
		`UPDATE sessions SET ended_at = datetime('now'), summary = ? WHERE id = ?`,
		nullableString(summary), id,
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, project, directory, started_at, ended_at, summary, context_mode, active_theme
		 FROM sessions WHERE id = ?`, id,
	)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Project, &sess.Directory, &sess.StartedAt,
		&sess.EndedAt, &sess.Summary, &sess.ContextMode, &sess.ActiveTheme); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %q not found", id)
		}
		return nil, err
	}
	return &sess, nil
}

// RecentSessions returns recent sessions with their task counts.
func (s *Store) RecentSessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.queryItHook(s.db, `
		SELECT s.id, s.project, s.started_at, s.ended_at, s.summary,
		       COUNT(t.id) AS task_count
		FROM sessions s
		LEFT JOIN tasks t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Project, &ss.StartedAt, &ss.EndedAt, &ss.Summary, &ss.TaskCount); err != nil {
			return nil, err
		}
		results = append(results, ss)
	}
	return results, rows.Err()
}

// UpdateSessionContext records the mode and theme a session is working in.
func (s *Store) UpdateSessionContext(id, mode, theme string) error {
	_, err := s.execHook(s.db,
		`UPDATE sessions SET context_mode = ?, active_theme = ? WHERE id = ?`,
		nullableString(mode), nullableString(theme), id,
	)
	return err
}

// LogContextEscalation appends one escalation record for a session.
func (s *Store) LogContextEscalation(sessionID, fromMode, toMode, reason string) error {
	_, err := s.execHook(s.db,
		`INSERT INTO context_escalations (session_id, from_mode, to_mode, reason)
		 VALUES (?, ?, ?, ?)`,
		sessionID, fromMode, toMode, nullableString(reason),
	)
	return err
}

// SessionEscalations lists a session's escalations, oldest first.
func (s *Store) SessionEscalations(sessionID string) ([]Escalation, error) {
	rows, err := s.queryItHook(s.db, `
		SELECT id, session_id, from_mode, to_mode, COALESCE(reason, ''), created_at
		FROM context_escalations
		WHERE session_id = ?
		ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Escalation
	for rows.Next() {
		var e Escalation
		if err := rows.Scan(&e.ID, &e.SessionID, &e.FromMode, &e.ToMode, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ─── Tasks ────────────────────────────────────────────────────────────────────

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(p CreateTaskParams) (int64, error) {
	if strings.TrimSpace(p.Title) == "" {
		return 0, fmt.Errorf("task title is required")
	}
	priority := normalizePriority(p.Priority)

	res, err := s.execHook(s.db,
		`INSERT INTO tasks (session_id, title, description, theme, priority)
		 VALUES (?, ?, ?, ?, ?)`,
		nullableString(p.SessionID), strings.TrimSpace(p.Title), p.Description,
		nullableString(p.Theme), priority,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(id int64) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, title, description, theme, status, priority,
		        created_at, updated_at, completed_at
		 FROM tasks WHERE id = ?`, id,
	)
	var t Task
	if err := row.Scan(&t.ID, &t.SessionID, &t.Title, &t.Description, &t.Theme,
		&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %d not found", id)
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus moves a task through its state machine. Completing a task
// that still has pending or in-progress sidequests is rejected.
func (s *Store) UpdateTaskStatus(id int64, to TaskStatus) error {
	task, err := s.GetTask(id)
	if err != nil {
		return err
	}
	if !canTransition(task.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, to)
	}

	if to == TaskCompleted {
		active, err := s.activeSidequestCount(id)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: task %d has %d active sidequest(s); complete or abandon them first", ErrInvalidTransition, id, active)
		}
	}

	completedAt := "NULL"
	if to == TaskCompleted {
		completedAt = "datetime('now')"
	}
	_, err = s.execHook(s.db,
		`UPDATE tasks SET status = ?, updated_at = datetime('now'), completed_at = `+completedAt+`
		 WHERE id = ?`,
		string(to), id,
	)
	return err
}

// ListTasks returns tasks filtered by theme and status, newest first.
func (s *Store) ListTasks(opts TaskListOptions) ([]Task, error) {
	limit := opts.Limit
	if limit <= 0 || limit > s.cfg.MaxListResults {
		limit = s.cfg.MaxListResults
	}

	query := `
		SELECT id, session_id, title, description, theme, status, priority,
		       created_at, updated_at, completed_at
		FROM tasks
		WHERE 1=1
	`
	args := []any{}
	if opts.Theme != "" {
		query += " AND theme = ?"
		args = append(args, opts.Theme)
	}
	if opts.Status != "" {
		st, err := ValidateTaskStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		query += " AND status = ?"
		args = append(args, string(st))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Title, &t.Description, &t.Theme,
			&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// SearchTasks performs full-text search over task titles and descriptions.
// An empty or whitespace-only query falls back to recent tasks.
func (s *Store) SearchTasks(query string, limit int) ([]TaskSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return s.searchRecentTasks(limit)
	}

	rows, err := s.queryItHook(s.db, `
		SELECT t.id, t.session_id, t.title, t.description, t.theme, t.status, t.priority,
		       t.created_at, t.updated_at, t.completed_at, fts.rank
		FROM tasks_fts fts
		JOIN tasks t ON t.id = fts.rowid
		WHERE tasks_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TaskSearchResult
	for rows.Next() {
		var r TaskSearchResult
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Title, &r.Description, &r.Theme,
			&r.Status, &r.Priority, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) searchRecentTasks(limit int) ([]TaskSearchResult, error) {
	rows, err := s.queryItHook(s.db, `
		SELECT id, session_id, title, description, theme, status, priority,
		       created_at, updated_at, completed_at, 0 AS rank
		FROM tasks
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("search recent tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TaskSearchResult
	for rows.Next() {
		var r TaskSearchResult
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Title, &r.Description, &r.Theme,
			&r.Status, &r.Priority, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ─── Sidequests ───────────────────────────────────────────────────────────────

// CreateSidequest spawns a sidequest under a parent task. Completed tasks
// cannot grow new sidequests.
func (s *Store) CreateSidequest(taskID int64, title, description string) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("sidequest title is required")
	}
	parent, err := s.GetTask(taskID)
	if err != nil {
		return 0, err
	}
	if parent.Status == TaskCompleted {
		return 0, fmt.Errorf("task %d is completed; reopen or create a new task instead", taskID)
	}

	res, err := s.execHook(s.db,
		`INSERT INTO sidequests (task_id, title, description) VALUES (?, ?, ?)`,
		taskID, strings.TrimSpace(title), description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateSidequestStatus sets a sidequest's status. Completed and abandoned
// sidequests are terminal.
func (s *Store) UpdateSidequestStatus(id int64, to SidequestStatus) error {
	var current SidequestStatus
	err := s.db.QueryRow(`SELECT status FROM sidequests WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("sidequest %d not found", id)
		}
		return err
	}
	if current == SidequestCompleted || current == SidequestAbandoned {
		return fmt.Errorf("%w: sidequest already %s", ErrInvalidTransition, current)
	}

	completedAt := "NULL"
	if to == SidequestCompleted {
		completedAt = "datetime('now')"
	}
	_, err = s.execHook(s.db,
		`UPDATE sidequests SET status = ?, updated_at = datetime('now'), completed_at = `+completedAt+`
		 WHERE id = ?`,
		string(to), id,
	)
	return err
}

// ListSidequests returns a task's sidequests, oldest first.
func (s *Store) ListSidequests(taskID int64) ([]Sidequest, error) {
	rows, err := s.queryItHook(s.db, `
		SELECT id, task_id, title, description, status, created_at, updated_at, completed_at
		FROM sidequests
		WHERE task_id = ?
		ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Sidequest
	for rows.Next() {
		var sq Sidequest
		if err := rows.Scan(&sq.ID, &sq.TaskID, &sq.Title, &sq.Description, &sq.Status,
			&sq.CreatedAt, &sq.UpdatedAt, &sq.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, sq)
	}
	return results, rows.Err()
}

func (s *Store) activeSidequestCount(taskID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sidequests WHERE task_id = ? AND status IN ('pending', 'in-progress')`,
		taskID,
	).Scan(&count)
	return count, err
}

// ─── Flows ────────────────────────────────────────────────────────────────────

// TrackFlow registers a named flow under a theme. Tracking an existing flow
// is a no-op that returns the existing ID.
func (s *Store) TrackFlow(theme, name string) (int64, error) {
	if strings.TrimSpace(theme) == "" || strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("flow theme and name are required")
	}

	if _, err := s.execHook(s.db,
		`INSERT OR IGNORE INTO flows (theme, name) VALUES (?, ?)`,
		theme, name,
	); err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRow(
		`SELECT id FROM flows WHERE theme = ? AND name = ?`, theme, name,
	).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateFlowStatus sets a flow's status.
func (s *Store) UpdateFlowStatus(theme, name string, to FlowStatus) error {
	res, err := s.execHook(s.db,
		`UPDATE flows SET status = ?, updated_at = datetime('now') WHERE theme = ? AND name = ?`,
		string(to), theme, name,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("flow %q not tracked for theme %q", name, theme)
	}
	return nil
}

// FlowsForTheme lists every flow attached to a theme.
func (s *Store) FlowsForTheme(theme string) ([]Flow, error) {
	rows, err := s.queryItHook(s.db, `
		SELECT id, theme, name, status, created_at, updated_at
		FROM flows
		WHERE theme = ?
		ORDER BY name ASC`, theme)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Flow
	for rows.Next() {
		var f Flow
		if err := rows.Scan(&f.ID, &f.Theme, &f.Name, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// FlowStatus returns the status of one named flow.
func (s *Store) FlowStatus(theme, name string) (string, error) {
	var status string
	err := s.db.QueryRow(
		`SELECT status FROM flows WHERE theme = ? AND name = ?`, theme, name,
	).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("flow %q not tracked for theme %q", name, theme)
		}
		return "", err
	}
	return status, nil
}

// ─── File Metadata ────────────────────────────────────────────────────────────

// UpsertFileMeta writes analysis facts for a file, preserving its
// modification count.
func (s *Store) UpsertFileMeta(m FileMeta) error {
	_, err := s.execHook(s.db, `
		INSERT INTO file_meta (path, language, category, import_count, export_count, last_analyzed)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(path) DO UPDATE SET
			language      = excluded.language,
			category      = excluded.category,
			import_count  = excluded.import_count,
			export_count  = excluded.export_count,
			last_analyzed = excluded.last_analyzed`,
		m.Path, nullableString(m.Language), nullableString(m.Category),
		m.ImportCount, m.ExportCount,
	)
	return err
}

// GetFileMeta retrieves stored facts for a path. Missing files return
// (nil, nil): absence is not an error for metadata.
func (s *Store) GetFileMeta(path string) (*FileMeta, error) {
	row := s.db.QueryRow(`
		SELECT path, COALESCE(language, ''), COALESCE(category, ''),
		       modification_count, import_count, export_count,
		       last_modified_at, last_analyzed
		FROM file_meta WHERE path = ?`, path)

	var m FileMeta
	if err := row.Scan(&m.Path, &m.Language, &m.Category, &m.ModificationCount,
		&m.ImportCount, &m.ExportCount, &m.LastModifiedAt, &m.LastAnalyzed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// RecordModification bumps a file's modification count.
func (s *Store) RecordModification(path string) error {
	_, err := s.execHook(s.db, `
		INSERT INTO file_meta (path, modification_count, last_modified_at)
		VALUES (?, 1, datetime('now'))
		ON CONFLICT(path) DO UPDATE SET
			modification_count = modification_count + 1,
			last_modified_at   = datetime('now')`,
		path,
	)
	return err
}

// ModificationCount returns how many modifications are on record for a path.
// Unknown paths count zero.
func (s *Store) ModificationCount(path string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT modification_count FROM file_meta WHERE path = ?`, path,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// SeedModificationCounts raises stored modification counts to at least the
// given values. Used to backfill from Git history; manual records are never
// lowered.
func (s *Store) SeedModificationCounts(counts map[string]int) error {
	tx, err := s.beginTxHook()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for path, count := range counts {
		if _, err := s.execHook(tx, `
			INSERT INTO file_meta (path, modification_count)
			VALUES (?, ?)
			ON CONFLICT(path) DO UPDATE SET
				modification_count = max(modification_count, excluded.modification_count)`,
			path, count,
		); err != nil {
			return err
		}
	}
	return s.commitHook(tx)
}

// ReplaceFileLinks swaps a file's outgoing dependency edges in one
// transaction.
func (s *Store) ReplaceFileLinks(source string, targets []string) error {
	tx, err := s.beginTxHook()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.execHook(tx, `DELETE FROM file_links WHERE source = ?`, source); err != nil {
		return err
	}
	for _, target := range targets {
		if _, err := s.execHook(tx,
			`INSERT OR IGNORE INTO file_links (source, target) VALUES (?, ?)`,
			source, target,
		); err != nil {
			return err
		}
	}
	return s.commitHook(tx)
}

// FileRelationships returns a file's stored outgoing and incoming edges.
func (s *Store) FileRelationships(path string) (dependencies, dependents []string, err error) {
	out, err := s.queryItHook(s.db,
		`SELECT target FROM file_links WHERE source = ? ORDER BY target`, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = out.Close() }()
	for out.Next() {
		var t string
		if err := out.Scan(&t); err != nil {
			return nil, nil, err
		}
		dependencies = append(dependencies, t)
	}
	if err := out.Err(); err != nil {
		return nil, nil, err
	}

	in, err := s.queryItHook(s.db,
		`SELECT source FROM file_links WHERE target = ? ORDER BY source`, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = in.Close() }()
	for in.Next() {
		var src string
		if err := in.Scan(&src); err != nil {
			return nil, nil, err
		}
		dependents = append(dependents, src)
	}
	return dependencies, dependents, in.Err()
}

// ─── Directory Metadata ───────────────────────────────────────────────────────

// DirectoryMetadata returns the stored description for a directory, or
// (nil, nil) when none exists.
func (s *Store) DirectoryMetadata(path string) (*DirMeta, error) {
	row := s.db.QueryRow(
		`SELECT path, description, updated_at FROM dir_meta WHERE path = ?`, path,
	)
	var d DirMeta
	if err := row.Scan(&d.Path, &d.Description, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// SetDirectoryMetadata stores or replaces a directory description.
func (s *Store) SetDirectoryMetadata(path, description string) error {
	_, err := s.execHook(s.db, `
		INSERT INTO dir_meta (path, description, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(path) DO UPDATE SET
			description = excluded.description,
			updated_at  = excluded.updated_at`,
		path, description,
	)
	return err
}

// ─── Branch Snapshots ─────────────────────────────────────────────────────────

// RecordBranchSnapshot appends a Git branch state observation.
func (s *Store) RecordBranchSnapshot(branch, head string, dirty bool) (int64, error) {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	res, err := s.execHook(s.db,
		`INSERT INTO branch_snapshots (branch, head, dirty) VALUES (?, ?, ?)`,
		branch, head, dirtyInt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestBranchSnapshot returns the most recent snapshot, or (nil, nil) when
// none has been recorded.
func (s *Store) LatestBranchSnapshot() (*BranchSnapshot, error) {
	row := s.db.QueryRow(`
		SELECT id, branch, head, dirty, recorded_at
		FROM branch_snapshots
		ORDER BY id DESC LIMIT 1`)

	var b BranchSnapshot
	var dirty int
	if err := row.Scan(&b.ID, &b.Branch, &b.Head, &dirty, &b.RecordedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.Dirty = dirty != 0
	return &b, nil
}

// ─── Stats ────────────────────────────────────────────────────────────────────

// Stats returns aggregate project-memory statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	_ = s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&stats.TotalTasks)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE status != 'completed'").Scan(&stats.OpenTasks)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM sidequests").Scan(&stats.TotalSidequests)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM flows").Scan(&stats.TotalFlows)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM file_meta").Scan(&stats.TrackedFiles)

	return stats, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix billing bug" → `"fix" "billing" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
