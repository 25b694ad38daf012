package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gtodo/internal/service"
)

// PostgresStore keeps items in a todos table ordered by creation time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the schema if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			id UUID PRIMARY KEY,
			body TEXT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_created ON todos (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init todo schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]service.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, body, completed FROM todos ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	items := []service.Item{}
	for rows.Next() {
		var it service.Item
		if err := rows.Scan(&it.ID, &it.Text, &it.Completed); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Create(ctx context.Context, text string) (service.Item, error) {
	item := service.Item{ID: uuid.NewString(), Text: text}
	if _, err := s.pool.Exec(ctx, `INSERT INTO todos (id, body) VALUES ($1, $2)`, item.ID, item.Text); err != nil {
		return service.Item{}, fmt.Errorf("insert todo: %w", err)
	}
	return item, nil
}

// Complete flips completed inside a transaction so concurrent toggles of
// the same row see exactly one success.
func (s *PostgresStore) Complete(ctx context.Context, id string) (service.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return service.Item{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var it service.Item
	err = tx.QueryRow(ctx,
		`SELECT id::text, body, completed FROM todos WHERE id=$1 FOR UPDATE`, id,
	).Scan(&it.ID, &it.Text, &it.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Item{}, ErrNotFound
	}
	if err != nil {
		return service.Item{}, fmt.Errorf("get todo: %w", err)
	}
	if it.Completed {
		return service.Item{}, ErrAlreadyCompleted
	}
	if _, err := tx.Exec(ctx, `UPDATE todos SET completed=TRUE WHERE id=$1`, id); err != nil {
		return service.Item{}, fmt.Errorf("complete todo: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return service.Item{}, fmt.Errorf("commit tx: %w", err)
	}
	it.Completed = true
	return it, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM todos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
