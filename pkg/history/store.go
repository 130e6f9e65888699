// Package history is the optional Postgres store for finished
// diagnosis sessions. The evidence tree on disk stays the source of
// truth; history only enables cross-session queries (per-service
// recurrence, stop-reason distributions) without walking the tree.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/diagnose"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrNotFound is returned when a session has no history row.
var ErrNotFound = errors.New("history: session not found")

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConfigFromEnv reads SRE_DB_* variables with local-development
// defaults.
func ConfigFromEnv() Config {
	port := 5432
	if v := os.Getenv("SRE_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	return Config{
		Host:     envOr("SRE_DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("SRE_DB_USER", "sre_agent"),
		Password: os.Getenv("SRE_DB_PASSWORD"),
		Database: envOr("SRE_DB_NAME", "sre_agent"),
		SSLMode:  envOr("SRE_DB_SSLMODE", "disable"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN renders the pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Record is one stored session summary.
type Record struct {
	SessionID       string          `json:"session_id"`
	Host            string          `json:"host"`
	Service         string          `json:"service"`
	Env             string          `json:"env"`
	Platform        string          `json:"platform"`
	PrimaryCategory string          `json:"primary_category"`
	StopReason      string          `json:"stop_reason"`
	CreatedAt       time.Time       `json:"created_at"`
	Report          json.RawMessage `json:"report"`
	Trace           json.RawMessage `json:"trace"`
}

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// NewStore opens the database, verifies the connection, and applies
// pending embedded migrations.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	return NewStoreFromDSN(ctx, cfg.DSN())
}

// NewStoreFromDSN is NewStore for callers that already hold a
// connection string, such as integration tests running against a
// container.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations applies embedded migrations via golang-migrate. The
// migration source is closed instead of the migrate instance because
// closing the instance would also close the shared *sql.DB.
func runMigrations(db *sql.DB) error {
	if err := checkEmbeddedMigrations(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("history: create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("history: create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("history: apply migrations: %w", err)
	}
	if err := source.Close(); err != nil {
		return fmt.Errorf("history: close migration source: %w", err)
	}
	return nil
}

func checkEmbeddedMigrations() error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: read embedded migrations: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("history: no embedded migration files found")
	}
	return nil
}

// SaveSession persists one finished diagnose result. Saving the same
// session twice overwrites, which makes replayed sessions idempotent.
func (s *Store) SaveSession(ctx context.Context, res *diagnose.Result) error {
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("history: encode report: %w", err)
	}
	traceJSON, err := json.Marshal(res.Trace)
	if err != nil {
		return fmt.Errorf("history: encode trace: %w", err)
	}

	meta := res.EvidencePack.Meta
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diagnosis_sessions
			(session_id, host, service, env, platform, primary_category, stop_reason, report, trace)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			primary_category = EXCLUDED.primary_category,
			stop_reason = EXCLUDED.stop_reason,
			report = EXCLUDED.report,
			trace = EXCLUDED.trace`,
		meta.SessionID, meta.Host, meta.Service, meta.Env, meta.Platform,
		res.EvidencePack.PrimaryCategory(), res.Trace.StopReason, reportJSON, traceJSON,
	)
	if err != nil {
		return fmt.Errorf("history: insert session: %w", err)
	}
	return nil
}

// SaveExecutions records a session's audit entries. Replays are
// deduplicated on (session_id, audit id).
func (s *Store) SaveExecutions(ctx context.Context, sessionID string, entries []audit.Entry) error {
	for _, e := range entries {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO command_executions
				(session_id, audit_id, cmd_id, cmd, started_at, elapsed_ms, output_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, audit_id) DO NOTHING`,
			sessionID, e.ID, e.CmdID, e.Cmd, e.StartedAt, e.ElapsedMS, e.OutputHash,
		)
		if err != nil {
			return fmt.Errorf("history: insert execution %s: %w", e.ID, err)
		}
	}
	return nil
}

// GetExecutions returns a session's recorded command executions in
// insertion order.
func (s *Store) GetExecutions(ctx context.Context, sessionID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, audit_id, cmd_id, cmd, started_at, elapsed_ms, output_hash
		FROM command_executions WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: query executions: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.SessionID, &e.ID, &e.CmdID, &e.Cmd, &e.StartedAt, &e.ElapsedMS, &e.OutputHash); err != nil {
			return nil, fmt.Errorf("history: scan execution: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSession loads one stored session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, host, service, env, platform, primary_category, stop_reason, created_at, report, trace
		FROM diagnosis_sessions WHERE session_id = $1`, sessionID)

	var rec Record
	err := row.Scan(&rec.SessionID, &rec.Host, &rec.Service, &rec.Env, &rec.Platform,
		&rec.PrimaryCategory, &rec.StopReason, &rec.CreatedAt, &rec.Report, &rec.Trace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: query session: %w", err)
	}
	return &rec, nil
}

// ListSessions returns the most recent sessions for a service, newest
// first. An empty service lists across all services.
func (s *Store) ListSessions(ctx context.Context, service string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, host, service, env, platform, primary_category, stop_reason, created_at, report, trace
		FROM diagnosis_sessions
		WHERE ($1 = '' OR service = $1)
		ORDER BY created_at DESC
		LIMIT $2`, service, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query sessions: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.Host, &rec.Service, &rec.Env, &rec.Platform,
			&rec.PrimaryCategory, &rec.StopReason, &rec.CreatedAt, &rec.Report, &rec.Trace); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
