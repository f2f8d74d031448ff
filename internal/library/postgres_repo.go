package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

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

const recordColumns = `id, user_id, catalog_book_id, status, personal_rating, personal_notes, price::float8,
	source, is_owned, is_favorite, reading_progress, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.CatalogBookID, &rec.Status, &rec.PersonalRating, &rec.PersonalNotes, &rec.Price,
		&rec.Source, &rec.IsOwned, &rec.IsFavorite, &rec.ReadingProgress, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

func (r *PostgresRepo) Add(ctx context.Context, rec Record) (Record, error) {
	const insertSQL = `
		INSERT INTO user_library_books
			(user_id, catalog_book_id, status, personal_rating, personal_notes, price, source,
			 is_owned, is_favorite, reading_progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + recordColumns

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := scanRecord(r.db.QueryRow(timeoutCtx, insertSQL,
		rec.UserID, rec.CatalogBookID, rec.Status, rec.PersonalRating, rec.PersonalNotes, rec.Price, rec.Source,
		rec.IsOwned, rec.IsFavorite, rec.ReadingProgress,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrAlreadyInLibrary
		}
		return Record{}, fmt.Errorf("insert library record: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) List(ctx context.Context, userID, status string, limit, offset int) ([]Record, int, error) {
	const countSQL = `
		SELECT COUNT(*)
		FROM user_library_books
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
	`
	var total int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.QueryRow(timeoutCtx, countSQL, userID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	const dataSQL = `
		SELECT ` + recordColumns + `
		FROM user_library_books
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	timeoutCtx2, cancel2 := r.withTimeout(ctx)
	defer cancel2()
	rows, err := r.db.Query(timeoutCtx2, dataSQL, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, userID string, id int64, c Changes) (Record, error) {
	const updateSQL = `
		UPDATE user_library_books SET
			status           = COALESCE($3, status),
			personal_rating  = COALESCE($4, personal_rating),
			personal_notes   = COALESCE($5, personal_notes),
			price            = COALESCE($6, price),
			source           = COALESCE($7, source),
			is_owned         = COALESCE($8, is_owned),
			is_favorite      = COALESCE($9, is_favorite),
			reading_progress = COALESCE($10, reading_progress),
			updated_at       = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + recordColumns

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := scanRecord(r.db.QueryRow(timeoutCtx, updateSQL,
		id, userID, c.Status, c.PersonalRating, c.PersonalNotes, c.Price, c.Source,
		c.IsOwned, c.IsFavorite, c.ReadingProgress,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("update library record: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, userID string, id int64) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, `DELETE FROM user_library_books WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
