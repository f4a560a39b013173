package todos

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

var tracer = otel.Tracer("github.com/s1natex/todos-api/internal/todos")

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

type dialect struct {
	name       string
	goose      goose.Dialect
	migrations string
	numbered   bool // $1, $2 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", goose: goose.DialectSQLite3, migrations: "migrations/sqlite"}
	postgresDialect = dialect{name: "postgresql", goose: goose.DialectPostgres, migrations: "migrations/postgres", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (d dialect) encodeTime(t time.Time) any {
	if d.numbered {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

// decodeTime accepts what either driver hands back for created_at.
func decodeTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return parseStoredTime(x)
	case []byte:
		return parseStoredTime(string(x))
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SQLRepo implements Repository on a relational database.
type SQLRepo struct {
	db      *sql.DB
	dialect dialect
}

func newSQLRepo(db *sql.DB, d dialect) *SQLRepo {
	return &SQLRepo{db: db, dialect: d}
}

func (r *SQLRepo) Close() error { return r.db.Close() }

// ApplyMigrations ensures the schema exists.
func (r *SQLRepo) ApplyMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, r.dialect.migrations)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(r.dialect.goose, r.db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

const selectColumns = `id, title, done, created_at`

func (r *SQLRepo) Create(ctx context.Context, title string, done bool) (t Todo, err error) {
	ctx, span := r.startSpan(ctx, "todos.store.create")
	defer func() { endSpan(span, err) }()

	created := now()
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		INSERT INTO todos (title, done, created_at)
		VALUES (?, ?, ?)
		RETURNING `+selectColumns),
		title, done, r.dialect.encodeTime(created.Time))
	t, err = scanTodo(row)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

func (r *SQLRepo) List(ctx context.Context) (out []Todo, err error) {
	ctx, span := r.startSpan(ctx, "todos.store.list")
	defer func() { endSpan(span, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM todos
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out = []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	span.SetAttributes(attribute.Int("todos.count", len(out)))
	return out, nil
}

func (r *SQLRepo) Find(ctx context.Context, id int64) (t Todo, found bool, err error) {
	ctx, span := r.startSpan(ctx, "todos.store.find", attribute.Int64("todo.id", id))
	defer func() { endSpan(span, err) }()

	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		SELECT `+selectColumns+`
		FROM todos
		WHERE id = ?
	`), id)
	return r.scanOptional(row, "find todo")
}

func (r *SQLRepo) Update(ctx context.Context, id int64, p Patch) (t Todo, found bool, err error) {
	if p.empty() {
		return r.Find(ctx, id)
	}

	ctx, span := r.startSpan(ctx, "todos.store.update", attribute.Int64("todo.id", id))
	defer func() { endSpan(span, err) }()

	var (
		sets []string
		args []any
	)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Done != nil {
		sets = append(sets, "done = ?")
		args = append(args, *p.Done)
	}
	args = append(args, id)

	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		UPDATE todos
		SET `+strings.Join(sets, ", ")+`
		WHERE id = ?
		RETURNING `+selectColumns), args...)
	return r.scanOptional(row, "update todo")
}

func (r *SQLRepo) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := r.startSpan(ctx, "todos.store.delete", attribute.Int64("todo.id", id))
	defer func() { endSpan(span, err) }()

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM todos WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepo) scanOptional(row *sql.Row, op string) (Todo, bool, error) {
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, false, nil
	}
	if err != nil {
		return Todo{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return t, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (Todo, error) {
	var (
		t       Todo
		created any
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Done, &created); err != nil {
		return Todo{}, err
	}
	ts, err := decodeTime(created)
	if err != nil {
		return Todo{}, err
	}
	t.CreatedAt = Timestamp{ts}
	return t, nil
}

func (r *SQLRepo) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", r.dialect.name))
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
