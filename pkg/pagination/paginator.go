// Package pagination drives provider list endpoints one page at a time.
//
// A Paginator is pulled explicitly by the caller:
//
//	p := pagination.New(pagination.StrategyCursor, fetch)
//	for p.HasMorePages() {
//		items, err := p.NextPage(ctx)
//		...
//	}
package pagination

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxPages bounds a single pass when the caller does not set a ceiling.
const DefaultMaxPages = 1000

// ErrPaginationLimitExceeded is returned when a provider keeps reporting more pages past the ceiling.
var ErrPaginationLimitExceeded = errors.New("pagination limit exceeded")

// Strategy is the continuation primitive a provider exposes.
type Strategy string

const (
	StrategyOffset   Strategy = "offset"
	StrategyPage     Strategy = "page"
	StrategyCursor   Strategy = "cursor"
	StrategyNextLink Strategy = "next_link"
	StrategySingle   Strategy = "single"
)

// Cursor carries the position of the next request. Only the field matching the strategy is used.
type Cursor struct {
	Offset int
	Page   int
	Token  string
	URL    string
}

// IsStart reports whether the cursor points at the first page.
func (c Cursor) IsStart() bool {
	return c == Cursor{}
}

// Page is one response from a list endpoint. A nil Next means the provider reported the last page.
type Page[T any] struct {
	Items []T
	Next  *Cursor
}

// FetchFunc requests the page at cursor.
type FetchFunc[T any] func(ctx context.Context, cursor Cursor) (*Page[T], error)

type Option func(*options)

type options struct {
	maxPages int
}

// WithMaxPages sets the page-count ceiling. Values below 1 keep the default.
func WithMaxPages(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// Paginator walks a list endpoint lazily.
type Paginator[T any] struct {
	strategy Strategy
	fetch    FetchFunc[T]
	cursor   Cursor
	done     bool
	pages    int
	maxPages int
}

func New[T any](strategy Strategy, fetch FetchFunc[T], opts ...Option) *Paginator[T] {
	o := options{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(&o)
	}

	return &Paginator[T]{
		strategy: strategy,
		fetch:    fetch,
		maxPages: o.maxPages,
	}
}

// HasMorePages returns true until the provider signals the end.
func (p *Paginator[T]) HasMorePages() bool {
	return !p.done
}

// PagesFetched returns the number of pages returned so far.
func (p *Paginator[T]) PagesFetched() int {
	return p.pages
}

func (p *Paginator[T]) Strategy() Strategy {
	return p.strategy
}

// NextPage fetches the next page. The end is reached on a nil continuation, an empty page,
// or after the first page for StrategySingle.
func (p *Paginator[T]) NextPage(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, errors.New("no more pages")
	}
	if p.pages >= p.maxPages {
		return nil, fmt.Errorf("%w: %d pages fetched with %s pagination", ErrPaginationLimitExceeded, p.pages, p.strategy)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}
	p.pages++

	if page == nil || len(page.Items) == 0 || page.Next == nil || p.strategy == StrategySingle {
		p.done = true
	} else {
		if *page.Next == p.cursor {
			return nil, fmt.Errorf("%w: provider returned the same %s cursor twice", ErrPaginationLimitExceeded, p.strategy)
		}
		p.cursor = *page.Next
	}

	if page == nil {
		return nil, nil
	}
	return page.Items, nil
}
