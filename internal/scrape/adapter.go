package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RowSource is a live handle on the board page returning each student row's text.
type RowSource interface {
	FindRows(ctx context.Context) ([]string, error)
}

// SessionProvider opens a fresh handle on an authenticated board session.
type SessionProvider interface {
	Open(ctx context.Context) (RowSource, error)
}

// Scraper turns the board into snapshots.
type Scraper interface {
	Connect(ctx context.Context) error
	Scrape(ctx context.Context) (Snapshot, error)
}

// Adapter reads rows from the current session handle and parses them.
type Adapter struct {
	provider SessionProvider
	filter   NameFilter
	log      *zap.Logger

	mu     sync.Mutex
	source RowSource
}

var _ Scraper = (*Adapter)(nil)

func NewAdapter(provider SessionProvider, filter NameFilter, log *zap.Logger) *Adapter {
	return &Adapter{
		provider: provider,
		filter:   filter,
		log:      log,
	}
}

// Connect replaces the session handle with a freshly opened one.
func (a *Adapter) Connect(ctx context.Context) error {
	source, err := a.provider.Open(ctx)
	if err != nil {
		return fmt.Errorf("open board session: %w", err)
	}
	a.mu.Lock()
	a.source = source
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Scrape(ctx context.Context) (Snapshot, error) {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	if source == nil {
		return nil, fmt.Errorf("%w: no session", ErrUnavailable)
	}

	rows, err := source.FindRows(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	snap := make(Snapshot, len(rows))
	for _, row := range rows {
		name, entry, ok := ParseRow(row, a.filter)
		if !ok {
			a.log.Debug("skipping row without a student name", zap.String("row", row))
			continue
		}
		if prev, dup := snap[name]; dup {
			entry = prev.merge(entry)
		}
		snap[name] = entry
	}

	if len(rows) > 0 && len(snap) == 0 {
		return nil, fmt.Errorf("%w: %d rows but no student names", ErrMalformed, len(rows))
	}
	return snap, nil
}
