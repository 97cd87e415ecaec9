package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mypov/backend/internal/config"
	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/logging"
)

const (
	migrationAttempts    = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

// Postgres codes worth another attempt: serialization_failure,
// deadlock_detected and lock_not_available.
var retryablePgErrorCodes = []string{"40001", "40P01", "55P03"}

// migrationPlan pairs the .sql files on disk with the versions already recorded
// in schema_migrations.
type migrationPlan struct {
	files   []string
	applied map[string]bool
}

func (p migrationPlan) pending() []string {
	var out []string
	for _, name := range p.files {
		if !p.applied[name] {
			out = append(out, name)
		}
	}
	return out
}

func (p migrationPlan) writeStatus(w io.Writer) error {
	for _, name := range p.files {
		mark := " "
		if p.applied[name] {
			mark = "x"
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n", mark, name); err != nil {
			return err
		}
	}
	return nil
}

func runMigrations(ctx context.Context, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "up", "status":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	dir, err := absoluteDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	files, err := listSQLFiles(dir)
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}
	plan := migrationPlan{files: files, applied: applied}

	if command == "status" {
		return plan.writeStatus(os.Stdout)
	}

	pending := plan.pending()
	if len(pending) == 0 {
		logger.Info("database schema is up to date", "dir", dir)
		return nil
	}
	for _, name := range pending {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyMigration(ctx, logger, conn, name, string(contents)); err != nil {
			return err
		}
		logger.Info("applied migration", "version", name)
	}
	return nil
}

func absoluteDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return abs, nil
}

// listSQLFiles returns the names of the .sql files directly inside dir in
// lexical order.
func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]bool, error) {
	if _, err := conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version TEXT PRIMARY KEY,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// applyMigration runs contents and records name in one serializable
// transaction, retrying transient failures with exponential backoff.
func applyMigration(ctx context.Context, logger *slog.Logger, conn *pgxpool.Conn, name, contents string) error {
	return retryTransient(ctx, logger.With("version", name), func() error {
		return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, contents); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
	})
}

func retryTransient(ctx context.Context, logger *slog.Logger, fn func() error) error {
	var err error
	for attempt := 1; attempt <= migrationAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(migrationBackoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil || !shouldRetryMigration(err) {
			return err
		}
		logger.Warn("transient migration error", "attempt", attempt, "maxAttempts", migrationAttempts, "error", err)
	}
	return fmt.Errorf("giving up after %d attempts: %w", migrationAttempts, err)
}

// migrationBackoff is the wait before the given 1-based attempt.
func migrationBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	backoff := migrationBaseBackoff << (attempt - 2)
	return min(backoff, migrationMaxBackoff)
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && slices.Contains(retryablePgErrorCodes, pgErr.Code)
}

// seedFileName maps a seed argument such as "dev" to dev_seed.sql. Names that
// already end in .sql are used as given.
func seedFileName(arg string) string {
	if strings.HasSuffix(arg, ".sql") {
		return arg
	}
	return arg + "_seed.sql"
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir, err := absoluteDir(cfg.SeedDir)
	if err != nil {
		return err
	}
	name := seedFileName(args[0])
	contents, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", name, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", name, err)
	}

	logging.New(os.Stderr, cfg.LogLevel).Info("applied seed", "seed", name)
	return nil
}
