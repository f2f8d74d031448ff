// Package catalogapi is a catalog.Store backed by the remote catalog service.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"biblioteca/internal/catalog"

	"golang.org/x/time/rate"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d: %s", e.Method, e.Path, e.Code, e.Body)
}

var _ catalog.Store = (*Client)(nil)

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient builds a client for baseURL (e.g. http://catalog:8080/api/catalog).
// maxRetries only applies to lookups by id; searches and creates are sent
// once.
func NewClient(baseURL, token string, rps int, maxRetries int, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), rps),
		maxRetries: maxRetries,
	}
}

func (c *Client) SearchBooks(ctx context.Context, q catalog.BookQuery) ([]catalog.Book, error) {
	params := url.Values{"title": {q.Title}}
	if len(q.AuthorNames) > 0 {
		params.Set("authors", strings.Join(q.AuthorNames, ","))
	}
	var out []catalog.Book
	err := c.do(ctx, http.MethodGet, "/books/search?"+params.Encode(), nil, &out)
	return out, err
}

func (c *Client) SearchAuthors(ctx context.Context, name string) ([]catalog.Author, error) {
	var out []catalog.Author
	err := c.do(ctx, http.MethodGet, "/authors/search?"+url.Values{"authorName": {name}}.Encode(), nil, &out)
	return out, err
}

func (c *Client) SearchPublishers(ctx context.Context, name string) ([]catalog.Publisher, error) {
	var out []catalog.Publisher
	err := c.do(ctx, http.MethodGet, "/publishers/search?"+url.Values{"name": {name}}.Encode(), nil, &out)
	return out, err
}

func (c *Client) SearchSeries(ctx context.Context, name string) ([]catalog.Series, error) {
	var out []catalog.Series
	err := c.do(ctx, http.MethodGet, "/series/search?"+url.Values{"name": {name}}.Encode(), nil, &out)
	return out, err
}

func (c *Client) SearchGenres(ctx context.Context, name string) ([]catalog.Genre, error) {
	var out []catalog.Genre
	err := c.do(ctx, http.MethodGet, "/genres/search?"+url.Values{"name": {name}}.Encode(), nil, &out)
	return out, err
}

func (c *Client) GetBook(ctx context.Context, id int64) (catalog.Book, error) {
	var out catalog.Book
	err := c.getByID(ctx, "books", id, &out)
	return out, err
}

func (c *Client) GetAuthor(ctx context.Context, id int64) (catalog.Author, error) {
	var out catalog.Author
	err := c.getByID(ctx, "authors", id, &out)
	return out, err
}

func (c *Client) GetPublisher(ctx context.Context, id int64) (catalog.Publisher, error) {
	var out catalog.Publisher
	err := c.getByID(ctx, "publishers", id, &out)
	return out, err
}

func (c *Client) GetSeries(ctx context.Context, id int64) (catalog.Series, error) {
	var out catalog.Series
	err := c.getByID(ctx, "series", id, &out)
	return out, err
}

func (c *Client) CreateBook(ctx context.Context, b catalog.Book) (catalog.Book, error) {
	var out catalog.Book
	err := c.do(ctx, http.MethodPost, "/books", b, &out)
	return out, err
}

func (c *Client) CreateAuthor(ctx context.Context, a catalog.Author) (catalog.Author, error) {
	var out catalog.Author
	err := c.do(ctx, http.MethodPost, "/authors", a, &out)
	return out, err
}

func (c *Client) CreatePublisher(ctx context.Context, p catalog.Publisher) (catalog.Publisher, error) {
	var out catalog.Publisher
	err := c.do(ctx, http.MethodPost, "/publishers", p, &out)
	return out, err
}

func (c *Client) CreateSeries(ctx context.Context, s catalog.Series) (catalog.Series, error) {
	var out catalog.Series
	err := c.do(ctx, http.MethodPost, "/series", s, &out)
	return out, err
}

func (c *Client) getByID(ctx context.Context, collection string, id int64, target interface{}) error {
	path := "/" + collection + "/" + strconv.FormatInt(id, 10)

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Backoff: 200ms, 400ms, 800ms...
			backoff := time.Duration(1<<uint(i-1)) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.do(ctx, http.MethodGet, path, nil, target)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) {
			if se.Code == http.StatusNotFound {
				return fmt.Errorf("%s %d: %w", collection, id, catalog.ErrNotFound)
			}
			if se.Code != http.StatusTooManyRequests && se.Code < 500 {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
