package ingest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) CreateRun(ctx context.Context, run *Run) (string, error) {
	const sql = `
		INSERT INTO ingest_runs (subject, book_limit, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var id string
	err := r.db.QueryRow(timeoutCtx, sql, run.Subject, run.BookLimit, run.Status, run.StartedAt).Scan(&id)
	return id, err
}

func (r *PostgresRepo) UpdateRun(ctx context.Context, run *Run) error {
	const sql = `
		UPDATE ingest_runs SET
			finished_at = $1,
			status = $2,
			books_fetched = $3,
			books_created = $4,
			books_matched = $5,
			books_failed = $6,
			authors_created = $7,
			authors_matched = $8,
			error = $9
		WHERE id = $10`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, sql, run.FinishedAt, run.Status, run.BooksFetched, run.BooksCreated, run.BooksMatched,
		run.BooksFailed, run.AuthorsCreated, run.AuthorsMatched, run.Error, run.ID)
	return err
}

func (r *PostgresRepo) LinkBookToRun(ctx context.Context, runID string, catalogBookID int64, created bool) error {
	const sql = `
		INSERT INTO ingest_run_books (run_id, catalog_book_id, created)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, sql, runID, catalogBookID, created)
	return err
}
