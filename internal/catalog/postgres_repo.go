package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biblioteca/internal/match"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// searchCandidateLimit bounds how many loose candidates a single search reads.
const searchCandidateLimit = 200

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

// nameFilter selects rows whose normalized name contains the query, is
// contained in it, or shares at least one token with it.
func nameFilter(column string) string {
	return fmt.Sprintf(`(strpos(%[1]s, $1) > 0 OR strpos($1, %[1]s) > 0 OR regexp_split_to_array(%[1]s, ' ') && $2::text[])`, column)
}

func searchArgs(q string) (string, []string) {
	norm := match.Normalize(q)
	return norm, strings.Fields(norm)
}

const bookColumns = `
	b.id, b.title, b.publisher_id, b.series_id, b.series_order, b.genres, b.pages, b.isbn,
	b.original_publication_date, b.description, b.language, b.cover_url, b.created_at, b.updated_at,
	COALESCE(array_agg(ba.author_id ORDER BY ba.position) FILTER (WHERE ba.author_id IS NOT NULL), '{}')`

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Title, &b.PublisherID, &b.SeriesID, &b.SeriesOrder, &b.Genres, &b.Pages, &b.ISBN,
		&b.OriginalPublicationDate, &b.Description, &b.Language, &b.CoverURL, &b.CreatedAt, &b.UpdatedAt,
		&b.AuthorIDs,
	)
	return b, err
}

func (r *PostgresRepo) SearchBooks(ctx context.Context, q BookQuery) ([]Book, error) {
	norm, tokens := searchArgs(q.Title)
	args := []any{norm, tokens}

	where := nameFilter("b.title_norm")
	if len(q.AuthorNames) > 0 {
		names := make([]string, 0, len(q.AuthorNames))
		for _, n := range q.AuthorNames {
			names = append(names, match.Normalize(n))
		}
		where += ` AND EXISTS (
			SELECT 1 FROM catalog_book_authors x
			JOIN catalog_authors a ON a.id = x.author_id
			WHERE x.book_id = b.id AND a.name_norm = ANY($3::text[]))`
		args = append(args, names)
	}

	byAuthor := "false"
	if len(q.AuthorIDs) > 0 {
		args = append(args, q.AuthorIDs)
		byAuthor = fmt.Sprintf("coalesce(bool_or(ba.author_id = ANY($%d::bigint[])), false)", len(args))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM catalog_books b
		LEFT JOIN catalog_book_authors ba ON ba.book_id = b.id
		WHERE %s
		GROUP BY b.id
		ORDER BY (b.title_norm = $1) DESC, %s DESC, b.id ASC
		LIMIT %d`, bookColumns, where, byAuthor, searchCandidateLimit)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SearchAuthors(ctx context.Context, name string) ([]Author, error) {
	norm, tokens := searchArgs(name)
	query := fmt.Sprintf(`
		SELECT id, name, biography, birth_date, death_date, nationality, website, image_url, created_at, updated_at
		FROM catalog_authors
		WHERE %s
		ORDER BY (name_norm = $1) DESC, id ASC
		LIMIT %d`, nameFilter("name_norm"), searchCandidateLimit)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, norm, tokens)
	if err != nil {
		return nil, fmt.Errorf("search authors: %w", err)
	}
	defer rows.Close()

	var out []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Name, &a.Biography, &a.BirthDate, &a.DeathDate, &a.Nationality,
			&a.Website, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SearchPublishers(ctx context.Context, name string) ([]Publisher, error) {
	norm, tokens := searchArgs(name)
	query := fmt.Sprintf(`
		SELECT id, name, description, website, founded_year, headquarters, logo_url, created_at, updated_at
		FROM catalog_publishers
		WHERE %s
		ORDER BY (name_norm = $1) DESC, id ASC
		LIMIT %d`, nameFilter("name_norm"), searchCandidateLimit)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, norm, tokens)
	if err != nil {
		return nil, fmt.Errorf("search publishers: %w", err)
	}
	defer rows.Close()

	var out []Publisher
	for rows.Next() {
		var p Publisher
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Website, &p.FoundedYear, &p.Headquarters,
			&p.LogoURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SearchSeries(ctx context.Context, name string) ([]Series, error) {
	norm, tokens := searchArgs(name)
	query := fmt.Sprintf(`
		SELECT id, name, description, total_books, is_completed, created_at, updated_at
		FROM catalog_series
		WHERE %s
		ORDER BY (name_norm = $1) DESC, id ASC
		LIMIT %d`, nameFilter("name_norm"), searchCandidateLimit)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, norm, tokens)
	if err != nil {
		return nil, fmt.Errorf("search series: %w", err)
	}
	defer rows.Close()

	var out []Series
	for rows.Next() {
		var s Series
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.TotalBooks, &s.IsCompleted, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SearchGenres(ctx context.Context, name string) ([]Genre, error) {
	norm, tokens := searchArgs(name)
	query := fmt.Sprintf(`
		SELECT id, name, description, parent_genre_id, created_at, updated_at
		FROM catalog_genres
		WHERE %s
		ORDER BY (name_norm = $1) DESC, id ASC
		LIMIT %d`, nameFilter("name_norm"), searchCandidateLimit)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, norm, tokens)
	if err != nil {
		return nil, fmt.Errorf("search genres: %w", err)
	}
	defer rows.Close()

	var out []Genre
	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ParentGenreID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetBook(ctx context.Context, id int64) (Book, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM catalog_books b
		LEFT JOIN catalog_book_authors ba ON ba.book_id = b.id
		WHERE b.id = $1
		GROUP BY b.id`, bookColumns)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query, id))
	if err != nil {
		return Book{}, notFound(err, TypeBook, id)
	}
	return b, nil
}

func (r *PostgresRepo) GetAuthor(ctx context.Context, id int64) (Author, error) {
	const query = `
		SELECT id, name, biography, birth_date, death_date, nationality, website, image_url, created_at, updated_at
		FROM catalog_authors
		WHERE id = $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var a Author
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(&a.ID, &a.Name, &a.Biography, &a.BirthDate, &a.DeathDate,
		&a.Nationality, &a.Website, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Author{}, notFound(err, TypeAuthor, id)
	}
	return a, nil
}

func (r *PostgresRepo) GetPublisher(ctx context.Context, id int64) (Publisher, error) {
	const query = `
		SELECT id, name, description, website, founded_year, headquarters, logo_url, created_at, updated_at
		FROM catalog_publishers
		WHERE id = $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var p Publisher
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.Website, &p.FoundedYear,
		&p.Headquarters, &p.LogoURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Publisher{}, notFound(err, TypePublisher, id)
	}
	return p, nil
}

func (r *PostgresRepo) GetSeries(ctx context.Context, id int64) (Series, error) {
	const query = `
		SELECT id, name, description, total_books, is_completed, created_at, updated_at
		FROM catalog_series
		WHERE id = $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var s Series
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(&s.ID, &s.Name, &s.Description, &s.TotalBooks,
		&s.IsCompleted, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Series{}, notFound(err, TypeSeries, id)
	}
	return s, nil
}

func (r *PostgresRepo) CreateBook(ctx context.Context, b Book) (Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Book{}, err
	}
	defer tx.Rollback(timeoutCtx)

	const bookSQL = `
		INSERT INTO catalog_books (title, publisher_id, series_id, series_order, genres, pages, isbn,
			original_publication_date, description, language, cover_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	genres := b.Genres
	if genres == nil {
		genres = []string{}
	}
	err = tx.QueryRow(timeoutCtx, bookSQL, b.Title, b.PublisherID, b.SeriesID, b.SeriesOrder, genres, b.Pages,
		b.ISBN, b.OriginalPublicationDate, b.Description, b.Language, b.CoverURL,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Book{}, fmt.Errorf("create book: %w", err)
	}

	const authorSQL = `
		INSERT INTO catalog_book_authors (book_id, author_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`
	for i, authorID := range b.AuthorIDs {
		if _, err := tx.Exec(timeoutCtx, authorSQL, b.ID, authorID, i); err != nil {
			return Book{}, fmt.Errorf("link book author %d: %w", authorID, err)
		}
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return Book{}, err
	}
	b.Genres = genres
	return b, nil
}

func (r *PostgresRepo) CreateAuthor(ctx context.Context, a Author) (Author, error) {
	const query = `
		INSERT INTO catalog_authors (name, biography, birth_date, death_date, nationality, website, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, a.Name, a.Biography, a.BirthDate, a.DeathDate, a.Nationality,
		a.Website, a.ImageURL).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Author{}, fmt.Errorf("create author: %w", err)
	}
	return a, nil
}

func (r *PostgresRepo) CreatePublisher(ctx context.Context, p Publisher) (Publisher, error) {
	const query = `
		INSERT INTO catalog_publishers (name, description, website, founded_year, headquarters, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, p.Name, p.Description, p.Website, p.FoundedYear, p.Headquarters,
		p.LogoURL).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Publisher{}, fmt.Errorf("create publisher: %w", err)
	}
	return p, nil
}

func (r *PostgresRepo) CreateSeries(ctx context.Context, s Series) (Series, error) {
	const query = `
		INSERT INTO catalog_series (name, description, total_books, is_completed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, s.Name, s.Description, s.TotalBooks, s.IsCompleted).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Series{}, fmt.Errorf("create series: %w", err)
	}
	return s, nil
}

func notFound(err error, typ EntityType, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", typ, id, ErrNotFound)
	}
	return err
}
