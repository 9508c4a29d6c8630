package scraper

import (
	"errors"
	"fmt"
)

// Pool lazily creates at most one extractor per Type and owns them until
// Close. A Pool is not safe for concurrent use; each owner keeps its own.
type Pool struct {
	registry func() map[Type]Constructor
	opts     Options
	scrapers map[Type]Scraper
}

// NewPool creates an empty pool backed by the package registry
func NewPool(opts Options) *Pool {
	return newPoolWith(Registry, opts)
}

func newPoolWith(registry func() map[Type]Constructor, opts Options) *Pool {
	return &Pool{
		registry: registry,
		opts:     opts,
		scrapers: make(map[Type]Scraper),
	}
}

// Get returns the cached extractor for t, constructing it on first request
func (p *Pool) Get(t Type) (Scraper, error) {
	if s, ok := p.scrapers[t]; ok {
		return s, nil
	}

	construct, ok := p.registry()[t]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for type %q", t)
	}

	s := construct(p.opts)
	p.scrapers[t] = s
	return s, nil
}

// ForURL routes rawURL and returns the matching extractor
func (p *Pool) ForURL(rawURL string) (Type, Scraper, error) {
	t := ProperScraper(rawURL)
	s, err := p.Get(t)
	return t, s, err
}

// Len reports how many extractors have been constructed
func (p *Pool) Len() int {
	return len(p.scrapers)
}

// Close closes every constructed extractor exactly once and empties the pool
func (p *Pool) Close() error {
	var errs []error
	for t, s := range p.scrapers {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s scraper: %w", t, err))
		}
	}
	clear(p.scrapers)
	return errors.Join(errs...)
}
