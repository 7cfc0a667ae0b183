// Package migrate applies the SQL migration and seed files shipped under
// ops/migrations. Files run in lexical order, so names carry a numeric
// prefix (0001_identity.up.sql). Each file executes in its own transaction
// and is journaled by base name, which makes every command idempotent.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kompli.org/internal/obs"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
	seedSuffix = ".sql"
)

// Applied is one journal entry.
type Applied struct {
	Name string
	At   time.Time
}

// Runner applies migrations and seeds against a single database.
type Runner struct {
	db         *sql.DB
	sqlDir     string
	seedDir    string
	migJournal journal
	seedJrnl   journal
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournalTables overrides the bookkeeping table names.
func WithJournalTables(migrations, seeds string) Option {
	return func(r *Runner) {
		if migrations != "" {
			r.migJournal.table = migrations
		}
		if seeds != "" {
			r.seedJrnl.table = seeds
		}
	}
}

// NewRunner wires a Runner over the migration and seed directories.
func NewRunner(db *sql.DB, sqlDir, seedDir string, opts ...Option) *Runner {
	r := &Runner{
		db:         db,
		sqlDir:     sqlDir,
		seedDir:    seedDir,
		migJournal: journal{db: db, table: "schema_migrations"},
		seedJrnl:   journal{db: db, table: "schema_seeds"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies every pending migration in order and returns the names applied.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	files, err := listSQL(r.sqlDir, upSuffix)
	if err != nil {
		return nil, err
	}
	return r.applyPending(ctx, &r.migJournal, files, "migration_applied")
}

// Seed applies every pending seed file and returns the names applied.
func (r *Runner) Seed(ctx context.Context) ([]string, error) {
	files, err := listSQL(r.seedDir, seedSuffix)
	if err != nil {
		return nil, err
	}
	return r.applyPending(ctx, &r.seedJrnl, files, "seed_applied")
}

// Down rolls back the most recently applied migration and returns its name.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.migJournal.ensure(ctx); err != nil {
		return "", err
	}
	entries, err := r.migJournal.entries(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("nothing to roll back")
	}
	last := entries[len(entries)-1].Name
	down := filepath.Join(r.sqlDir, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if _, err := os.Stat(down); err != nil {
		return "", fmt.Errorf("no down file for %s", last)
	}
	if err := r.runFile(ctx, down); err != nil {
		return "", fmt.Errorf("roll back %s: %w", last, err)
	}
	if err := r.migJournal.forget(ctx, last); err != nil {
		return "", err
	}
	obs.LogEvent(map[string]any{"event": "migration_rolled_back", "name": last})
	return last, nil
}

// Status returns the migration journal in application order.
func (r *Runner) Status(ctx context.Context) ([]Applied, error) {
	if err := r.migJournal.ensure(ctx); err != nil {
		return nil, err
	}
	return r.migJournal.entries(ctx)
}

func (r *Runner) applyPending(ctx context.Context, j *journal, files []string, event string) ([]string, error) {
	if err := j.ensure(ctx); err != nil {
		return nil, err
	}
	done, err := j.names(ctx)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, path := range files {
		name := filepath.Base(path)
		if done[name] {
			continue
		}
		if err := r.runFile(ctx, path); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if err := j.record(ctx, name); err != nil {
			return applied, err
		}
		obs.LogEvent(map[string]any{"event": event, "name": name})
		applied = append(applied, name)
	}
	return applied, nil
}

// runFile executes one SQL file inside a single transaction.
func (r *Runner) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// journal is one bookkeeping table of applied file names.
type journal struct {
	db    *sql.DB
	table string
}

func (j *journal) ensure(ctx context.Context) error {
	ddl := fmt.Sprintf(
		`create table if not exists %s (name text primary key, applied_at timestamptz not null default now())`,
		j.table)
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *journal) record(ctx context.Context, name string) error {
	_, err := j.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, j.table),
		name, time.Now().UTC())
	return err
}

func (j *journal) forget(ctx context.Context, name string) error {
	_, err := j.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, j.table), name)
	return err
}

func (j *journal) names(ctx context.Context) (map[string]bool, error) {
	entries, err := j.entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name] = true
	}
	return out, nil
}

func (j *journal) entries(ctx context.Context) ([]Applied, error) {
	rows, err := j.db.QueryContext(ctx,
		fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, j.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var e Applied
		if err := rows.Scan(&e.Name, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// listSQL returns the matching files in dir, lexically sorted. A missing
// directory is treated as empty.
func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		if suffix == seedSuffix && strings.HasSuffix(e.Name(), downSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// splitStatements cuts a file into semicolon-terminated statements, keeping
// semicolons inside single-quoted literals intact. Empty fragments and
// trailing whitespace are dropped.
func splitStatements(src string) []string {
	var out []string
	var b strings.Builder
	inQuote := false
	for _, r := range src {
		if r == '\'' {
			inQuote = !inQuote
		}
		if r == ';' && !inQuote {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
