package ingest

import (
	"context"
	"time"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type Run struct {
	ID             string     `json:"id"`
	Subject        string     `json:"subject"`
	BookLimit      int        `json:"bookLimit"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	BooksFetched   int        `json:"booksFetched"`
	BooksCreated   int        `json:"booksCreated"`
	BooksMatched   int        `json:"booksMatched"`
	BooksFailed    int        `json:"booksFailed"`
	AuthorsCreated int        `json:"authorsCreated"`
	AuthorsMatched int        `json:"authorsMatched"`
	Error          string     `json:"error,omitempty"`
}

// Request selects what one run imports.
type Request struct {
	Subject string `json:"subject" validate:"notblank,max=100"`
	Limit   int    `json:"limit" validate:"gte=0,lte=500"`
}

type Repository interface {
	CreateRun(ctx context.Context, run *Run) (string, error)
	UpdateRun(ctx context.Context, run *Run) error
	LinkBookToRun(ctx context.Context, runID string, catalogBookID int64, created bool) error
}
