package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"
)

// HTTPProvider opens board sessions over plain HTTP, reusing the browser's
// session cookie.
type HTTPProvider struct {
	URL       string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
	RowsMin   int
	RowsMax   int
}

func (p HTTPProvider) Open(ctx context.Context) (RowSource, error) {
	if p.URL == "" {
		return nil, errors.New("board url is not configured")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid board url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if p.Cookie != "" {
		header := http.Header{"Cookie": []string{p.Cookie}}
		jar.SetCookies(u, (&http.Request{Header: header}).Cookies())
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &HTTPSource{
		client:    &http.Client{Jar: jar, Timeout: timeout},
		url:       u.String(),
		userAgent: p.UserAgent,
		rowsMin:   p.RowsMin,
		rowsMax:   p.RowsMax,
	}, nil
}

// HTTPSource fetches the board page on every FindRows call.
type HTTPSource struct {
	client    *http.Client
	url       string
	userAgent string
	rowsMin   int
	rowsMax   int
}

func (s *HTTPSource) FindRows(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: board returned %s", ErrUnavailable, resp.Status)
	}
	return ExtractRows(resp.Body, s.rowsMin, s.rowsMax)
}

// FileProvider serves a saved board page from disk; the file is re-read on
// every scrape.
type FileProvider struct {
	Path    string
	RowsMin int
	RowsMax int
}

func (p FileProvider) Open(ctx context.Context) (RowSource, error) {
	if _, err := os.Stat(p.Path); err != nil {
		return nil, err
	}
	return &FileSource{path: p.Path, rowsMin: p.RowsMin, rowsMax: p.RowsMax}, nil
}

type FileSource struct {
	path    string
	rowsMin int
	rowsMax int
}

func (s *FileSource) FindRows(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	return ExtractRows(f, s.rowsMin, s.rowsMax)
}
