package todos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"              // registers the "sqlite" driver
)

// ErrUnsupportedDatabaseURL is returned by Open for unknown URL schemes.
var ErrUnsupportedDatabaseURL = errors.New("unsupported database URL")

type backend int

const (
	backendSQLite backend = iota
	backendPostgres
	backendMemory
)

const sqliteMemory = ":memory:"

// parseDatabaseURL maps a database URL onto a backend and the path or DSN
// its driver expects. sqlite:///rel.db is relative and sqlite:////abs.db is
// absolute; sqlite:// alone is an in-memory database.
func parseDatabaseURL(raw string) (backend, string, error) {
	u := strings.TrimSpace(raw)
	switch {
	case u == "":
		return 0, "", fmt.Errorf("%w: empty", ErrUnsupportedDatabaseURL)
	case strings.HasPrefix(u, "memory://"):
		return backendMemory, "", nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return backendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		path := strings.TrimPrefix(strings.TrimPrefix(u, "sqlite://"), "/")
		if path == "" || path == sqliteMemory {
			return backendSQLite, sqliteMemory, nil
		}
		return backendSQLite, path, nil
	case strings.HasPrefix(u, "file:"), u == sqliteMemory:
		return backendSQLite, u, nil
	case strings.Contains(u, "://"):
		return 0, "", fmt.Errorf("%w: %q", ErrUnsupportedDatabaseURL, u)
	default:
		return backendSQLite, u, nil
	}
}

// Open connects to the store named by databaseURL and makes sure its schema exists.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	kind, target, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	var repo *SQLRepo
	switch kind {
	case backendMemory:
		return NewInMemoryRepo(), nil
	case backendPostgres:
		repo, err = OpenPostgres(ctx, target)
	default:
		dsn := target
		if target != sqliteMemory && !strings.HasPrefix(target, "file:") {
			if dsn, err = SQLiteFileDSN(target); err != nil {
				return nil, err
			}
		}
		repo, err = OpenSQLite(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// OpenSQLite opens a SQLite database and applies migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps a :memory: database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return finishOpen(ctx, db, sqliteDialect)
}

// OpenPostgres opens a PostgreSQL database through pgx and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	return finishOpen(ctx, db, postgresDialect)
}

func finishOpen(ctx context.Context, db *sql.DB, d dialect) (*SQLRepo, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	repo := newSQLRepo(db, d)
	if err := repo.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// SQLiteFileDSN builds a DSN like file:/absolute/path?_pragma=busy_timeout(5000)
// and creates the parent directory.
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)", nil
}
