package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"courier_mesh/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL,
	releasing INTEGER NOT NULL DEFAULT 0,
	spec TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL,
	job_id TEXT NOT NULL DEFAULT '',
	worker_id TEXT NOT NULL DEFAULT '',
	profit REAL NOT NULL DEFAULT 0,
	detail TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_kind ON observations(kind, seq);
CREATE INDEX IF NOT EXISTS idx_observations_job ON observations(job_id, seq);
CREATE INDEX IF NOT EXISTS idx_observations_worker ON observations(worker_id, seq);

CREATE TABLE IF NOT EXISTS report_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	reason TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

type ObservationFilter struct {
	Kind     domain.ObservationKind
	JobID    string
	WorkerID string
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Agents journal from many goroutines; one connection keeps the pragmas
	// below in force for every write.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ResetRegistry forgets agents from a previous run. Agents live only as long
// as the process that hosts them; the observation history is kept.
func (s *Store) ResetRegistry(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agents`); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	return nil
}

func (s *Store) UpsertAgent(ctx context.Context, entry domain.RegistryEntry, spec []byte) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if len(spec) == 0 {
		spec = []byte("{}")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO agents(id, kind, name, active, releasing, spec, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			active = excluded.active,
			releasing = excluded.releasing,
			spec = excluded.spec,
			updated_at = excluded.updated_at`,
		entry.ID, string(entry.Kind), entry.Name, boolToInt(entry.Active), boolToInt(entry.Releasing),
		string(spec), entry.CreatedAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *Store) SetAgentState(ctx context.Context, id string, active bool, releasing bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE agents SET active = ?, releasing = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), boolToInt(releasing), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("set agent state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set agent state: %w", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context, kind domain.AgentKind) ([]domain.RegistryEntry, error) {
	query := `SELECT id, kind, name, active, releasing, created_at, updated_at FROM agents`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RegistryEntry, 0)
	for rows.Next() {
		var e domain.RegistryEntry
		var k string
		var active, releasing int
		var created, updated int64
		if err := rows.Scan(&e.ID, &k, &e.Name, &active, &releasing, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		e.Kind = domain.AgentKind(k)
		e.Active = active == 1
		e.Releasing = releasing == 1
		e.CreatedAt = unixToTime(created)
		e.UpdatedAt = unixToTime(updated)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return result, nil
}

func (s *Store) RecordObservation(ctx context.Context, obs domain.Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now().UTC()
	}
	payload := string(obs.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO observations(id, kind, actor, job_id, worker_id, profit, detail, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, string(obs.Kind), obs.Actor, obs.JobID, obs.WorkerID, obs.Profit, obs.Detail,
		payload, obs.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

// ListObservations returns the newest observations first.
func (s *Store) ListObservations(ctx context.Context, filter ObservationFilter, limit int) ([]domain.Observation, error) {
	if limit <= 0 {
		limit = 200
	}
	where, args := filter.clause()
	args = append(args, limit)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, actor, job_id, worker_id, profit, detail, payload, created_at
		FROM observations`+where+`
		ORDER BY seq DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Observation, 0, limit)
	for rows.Next() {
		var item domain.Observation
		var kind, payload string
		var createdAt int64
		if err := rows.Scan(
			&item.ID, &kind, &item.Actor, &item.JobID, &item.WorkerID, &item.Profit,
			&item.Detail, &payload, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		item.Kind = domain.ObservationKind(kind)
		item.Payload = []byte(payload)
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}

func (s *Store) CountObservations(ctx context.Context, filter ObservationFilter) (int, error) {
	where, args := filter.clause()
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM observations`+where, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

func (s *Store) LogReportFile(ctx context.Context, entry domain.ReportFileLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO report_files(path, allowed, reason, bytes, created_at) VALUES(?, ?, ?, ?, ?)`,
		normalizeRelPath(entry.Path), boolToInt(entry.Allowed), entry.Reason, entry.Bytes, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log report file: %w", err)
	}
	return nil
}

func (s *Store) ListReportFiles(ctx context.Context, limit int) ([]domain.ReportFileLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, path, allowed, reason, bytes, created_at FROM report_files ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list report files: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ReportFileLog, 0)
	for rows.Next() {
		var item domain.ReportFileLog
		var allowed int
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.Path, &allowed, &item.Reason, &item.Bytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report file: %w", err)
		}
		item.Allowed = allowed == 1
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report files: %w", err)
	}
	return result, nil
}

func (f ObservationFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.JobID != "" {
		conds = append(conds, "job_id = ?")
		args = append(args, f.JobID)
	}
	if f.WorkerID != "" {
		conds = append(conds, "worker_id = ?")
		args = append(args, f.WorkerID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func normalizeRelPath(p string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	cleaned = strings.TrimPrefix(cleaned, "./")
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "."
	}
	return cleaned
}
