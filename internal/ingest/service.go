package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"biblioteca/internal/catalog"
	"biblioteca/internal/platform/logger"
	"biblioteca/internal/platform/openlibrary"
)

const defaultLimit = 50

type Config struct {
	BatchSize     int
	EnrichAuthors bool
}

type OpenLibraryClient interface {
	SearchBooks(ctx context.Context, subject string, limit int) (*openlibrary.SearchResponse, error)
	GetBooksByISBN(ctx context.Context, isbns []string) (map[string]openlibrary.BookDetails, error)
	GetAuthor(ctx context.Context, authorKey string) (*openlibrary.AuthorDetails, error)
}

// Ensurer resolves imported descriptions against the catalog.
type Ensurer interface {
	EnsureAuthor(ctx context.Context, a catalog.Author) (catalog.Author, bool, error)
	EnsurePublisher(ctx context.Context, p catalog.Publisher) (catalog.Publisher, bool, error)
	EnsureBook(ctx context.Context, b catalog.Book) (catalog.Book, bool, error)
}

type Service struct {
	olClient   OpenLibraryClient
	ensurer    Ensurer
	ingestRepo Repository
	cfg        Config
	log        *logger.Logger
	now        func() time.Time
}

func NewService(olClient OpenLibraryClient, ensurer Ensurer, ingestRepo Repository, cfg Config, log *logger.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Service{
		olClient:   olClient,
		ensurer:    ensurer,
		ingestRepo: ingestRepo,
		cfg:        cfg,
		log:        log.With("component", "ingest"),
		now:        time.Now,
	}
}

// Run imports up to req.Limit books for one subject. Every author, publisher
// and book goes through the resolver, so a repeated run creates nothing new.
// A book that cannot be resolved is counted as failed and skipped.
func (s *Service) Run(ctx context.Context, req Request) (run *Run, err error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	run = &Run{
		Subject:   subject,
		BookLimit: limit,
		Status:    StatusRunning,
		StartedAt: s.now(),
	}
	runID, err := s.ingestRepo.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create ingest run: %w", err)
	}
	run.ID = runID
	log := s.log.With("run_id", run.ID, "subject", subject)

	defer func() {
		now := s.now()
		run.FinishedAt = &now
		if err != nil && run.Error == "" {
			run.Error = err.Error()
		}
		if run.Error != "" {
			run.Status = StatusFailed
		} else {
			run.Status = StatusCompleted
		}
		// The caller's context may already be cancelled.
		if updateErr := s.ingestRepo.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
			log.Error("failed to update ingest run", "error", updateErr)
		}
		log.Info("ingest run finished",
			"status", run.Status,
			"books_created", run.BooksCreated,
			"books_matched", run.BooksMatched,
			"books_failed", run.BooksFailed)
	}()

	res, err := s.olClient.SearchBooks(ctx, subject, limit)
	if err != nil {
		return run, fmt.Errorf("search %q: %w", subject, err)
	}
	run.BooksFetched = len(res.Docs)

	docs := usableDocs(res.Docs, limit)
	for start := 0; start < len(docs); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(docs))
		batch := docs[start:end]
		details := s.hydrate(ctx, log, batch)

		for _, doc := range batch {
			if err := ctx.Err(); err != nil {
				return run, err
			}
			var d *openlibrary.BookDetails
			if bd, ok := details["ISBN:"+doc.PreferredISBN()]; ok {
				d = &bd
			}
			s.importDoc(ctx, log, run, subject, doc, d)
		}
	}
	return run, nil
}

// usableDocs drops entries without a title or author and repeats of the same
// edition, keeping search order.
func usableDocs(docs []openlibrary.Doc, limit int) []openlibrary.Doc {
	seen := make(map[string]bool, len(docs))
	out := make([]openlibrary.Doc, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Title) == "" || len(doc.AuthorNames) == 0 {
			continue
		}
		key := doc.PreferredISBN()
		if key == "" {
			key = doc.Key
		}
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *Service) hydrate(ctx context.Context, log *logger.Logger, batch []openlibrary.Doc) map[string]openlibrary.BookDetails {
	var isbns []string
	for _, doc := range batch {
		if isbn := doc.PreferredISBN(); isbn != "" {
			isbns = append(isbns, isbn)
		}
	}
	if len(isbns) == 0 {
		return nil
	}
	details, err := s.olClient.GetBooksByISBN(ctx, isbns)
	if err != nil {
		log.Warn("failed to hydrate batch", "isbns", len(isbns), "error", err)
		return nil
	}
	return details
}

func (s *Service) importDoc(ctx context.Context, log *logger.Logger, run *Run, subject string, doc openlibrary.Doc, d *openlibrary.BookDetails) {
	log = log.With("title", doc.Title)

	authorIDs := make([]int64, 0, len(doc.AuthorNames))
	for i, name := range doc.AuthorNames {
		a := catalog.Author{Name: name}
		if s.cfg.EnrichAuthors && i < len(doc.AuthorKeys) {
			s.enrichAuthor(ctx, log, &a, doc.AuthorKeys[i])
		}
		got, created, err := s.ensurer.EnsureAuthor(ctx, a)
		if err != nil {
			log.Warn("author not resolved", "author", name, "error", err)
			run.BooksFailed++
			return
		}
		if created {
			run.AuthorsCreated++
		} else {
			run.AuthorsMatched++
		}
		authorIDs = append(authorIDs, got.ID)
	}

	book := catalog.Book{
		Title:     doc.Title,
		AuthorIDs: authorIDs,
		ISBN:      doc.PreferredISBN(),
		Genres:    []string{subject},
	}
	if len(doc.Language) > 0 {
		book.Language = doc.Language[0]
	}
	if doc.FirstPublishYear > 0 {
		book.OriginalPublicationDate = fmt.Sprintf("%d", doc.FirstPublishYear)
	}
	if d != nil {
		book.Description = d.Notes
		book.CoverURL = d.Cover.Large
		if d.NumberOfPages > 0 {
			pages := d.NumberOfPages
			book.Pages = &pages
		}
		if len(d.Publishers) > 0 && strings.TrimSpace(d.Publishers[0].Name) != "" {
			p, _, err := s.ensurer.EnsurePublisher(ctx, catalog.Publisher{Name: d.Publishers[0].Name})
			if err != nil {
				log.Warn("publisher not resolved", "publisher", d.Publishers[0].Name, "error", err)
				run.BooksFailed++
				return
			}
			book.PublisherID = &p.ID
		}
	}

	got, created, err := s.ensurer.EnsureBook(ctx, book)
	if err != nil {
		log.Warn("book not resolved", "error", err)
		run.BooksFailed++
		return
	}
	if created {
		run.BooksCreated++
	} else {
		run.BooksMatched++
	}
	if err := s.ingestRepo.LinkBookToRun(ctx, run.ID, got.ID, created); err != nil {
		log.Warn("failed to link book to run", "book_id", got.ID, "error", err)
	}
}

func (s *Service) enrichAuthor(ctx context.Context, log *logger.Logger, a *catalog.Author, key string) {
	details, err := s.olClient.GetAuthor(ctx, key)
	if err != nil {
		log.Warn("failed to fetch author", "author_key", key, "error", err)
		return
	}
	a.Biography = details.Biography()
	a.BirthDate = details.BirthDate
	a.DeathDate = details.DeathDate
}
