package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// SQLStore implements Store on database/sql for both postgres and sqlite
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured backend and applies pending migrations
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Type {
	case DriverPostgres:
		if cfg.URL == "" {
			return nil, fmt.Errorf("postgres storage requires a database URL")
		}
		db, err = sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

	case DriverSQLite, "":
		cfg.Type = DriverSQLite
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		db, err = openSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: cfg.Type, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func openSQLite(file string) (*sql.DB, error) {
	memory := file == ":memory:"

	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if !memory {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}

	dsn := file + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}
	return db, nil
}

// migrate applies every embedded migration not yet recorded in schema_migrations
func (s *SQLStore) migrate(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return err
	}

	dir := path.Join("migrations", s.dialect)
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		version := strings.TrimSuffix(entry.Name(), ".sql")

		var applied int
		if err := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version,
		).Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		schema, err := migrationsFS.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(schema), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %s: %w", version, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
			version, s.now().Unix(),
		); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		log.V(1).Info("Applied migration", "version", version, "dialect", s.dialect)
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRun stores the run and one history row per workload dimension in a single transaction
func (s *SQLStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO analysis_runs (
			id, cluster_id, namespace, source, percentile, lookback_seconds,
			started_at, finished_at, workloads, failures, total_savings_usd, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.ClusterID, run.Namespace, run.Source, run.Percentile,
		int64(run.Lookback.Seconds()), run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		len(run.Results), run.FailureCount(), run.TotalSavings(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	insert := s.rebind(`
		INSERT INTO recommendations (
			id, run_id, namespace, kind, name, container, dimension,
			current_request, request_value, limit_value, savings_monthly_usd,
			risk, warnings, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, row := range run.Results {
		wl := row.Workload
		for _, d := range row.Results {
			var request, limit int64
			var warnings []string
			if rec := d.Recommendation; rec != nil {
				request, limit = rec.RequestValue, rec.LimitValue
				for _, w := range rec.Warnings {
					warnings = append(warnings, string(w.Kind))
				}
			}

			_, err := tx.ExecContext(ctx, insert,
				uuid.New().String(), run.ID, wl.Namespace, wl.Kind, wl.Name, wl.Container, string(d.Dimension),
				wl.Resources.Request(d.Dimension), request, limit, d.SavingsMonthly,
				string(row.Risk), strings.Join(warnings, ","), d.Error, run.StartedAt.UnixMilli(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert recommendation for %s: %w", wl.Key(), err)
			}
		}
	}

	return tx.Commit()
}

// GetRun loads a full run by ID
func (s *SQLStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	return loadRun(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload FROM analysis_runs WHERE id = ?`), id), id)
}

// LatestRun loads the most recent run for a namespace, or across all namespaces when empty
func (s *SQLStore) LatestRun(ctx context.Context, namespace string) (*models.AnalysisRun, error) {
	query := `SELECT payload FROM analysis_runs`
	var args []any
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	return loadRun(s.db.QueryRowContext(ctx, s.rebind(query), args...), "latest")
}

func loadRun(row *sql.Row, id string) (*models.AnalysisRun, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var run models.AnalysisRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns run headers newest first
func (s *SQLStore) ListRuns(ctx context.Context, namespace string, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, cluster_id, namespace, source, percentile, lookback_seconds,
			started_at, finished_at, workloads, failures, total_savings_usd
		FROM analysis_runs`
	var args []any
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		var r RunSummary
		var lookback, started, finished int64

		err := rows.Scan(
			&r.ID, &r.ClusterID, &r.Namespace, &r.Source, &r.Percentile, &lookback,
			&started, &finished, &r.Workloads, &r.Failures, &r.TotalSavings,
		)
		if err != nil {
			return nil, err
		}

		r.Lookback = time.Duration(lookback) * time.Second
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		runs = append(runs, &r)
	}

	return runs, rows.Err()
}

// WorkloadHistory returns stored outcomes for a workload newest first
func (s *SQLStore) WorkloadHistory(ctx context.Context, namespace, name string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := s.rebind(`
		SELECT run_id, namespace, kind, name, container, dimension,
			current_request, request_value, limit_value, savings_monthly_usd,
			risk, warnings, error, created_at
		FROM recommendations
		WHERE namespace = ? AND name = ?
		ORDER BY created_at DESC, container, dimension
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, namespace, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var dimension, risk, warnings string
		var created int64

		err := rows.Scan(
			&e.RunID, &e.Namespace, &e.Kind, &e.Name, &e.Container, &dimension,
			&e.CurrentRequest, &e.RequestValue, &e.LimitValue, &e.SavingsMonthly,
			&risk, &warnings, &e.Error, &created,
		)
		if err != nil {
			return nil, err
		}

		e.Dimension = models.ResourceDimension(dimension)
		e.Risk = models.RiskLevel(risk)
		if warnings != "" {
			for _, w := range strings.Split(warnings, ",") {
				e.Warnings = append(e.Warnings, models.WarningKind(w))
			}
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many were removed
func (s *SQLStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM recommendations WHERE run_id IN (SELECT id FROM analysis_runs WHERE started_at < ?)`), ms); err != nil {
		return 0, fmt.Errorf("failed to prune recommendations: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM analysis_runs WHERE started_at < ?`), ms)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, tx.Commit()
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
