package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/services/cache"
)

// Item represents one listing extracted from a marketplace.
// CreatedAt carries the Europe/Warsaw location; it is persisted as naive
// local time through helpers.NaiveISO.
type Item struct {
	Title           string     `json:"title"`
	Price           string     `json:"price"`
	Location        string     `json:"location"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	CreatedAtPretty string     `json:"created_at_pretty"`
	ImageURL        string     `json:"image_url"`
	ItemURL         string     `json:"item_url"`
	Description     string     `json:"description"`
}

// Summarizer condenses an item description. Extractors accept one but may
// leave descriptions untouched.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// PassthroughSummarizer returns descriptions unchanged
type PassthroughSummarizer struct{}

// Summarize implements Summarizer
func (PassthroughSummarizer) Summarize(_ context.Context, text string) (string, error) {
	return text, nil
}

// RecencyPolicy decides whether an HH:MM label is recent enough to report
type RecencyPolicy interface {
	WithinLastMinutes(timeStr string) bool
}

// Scraper is the contract every marketplace extractor implements
type Scraper interface {
	// FetchNewItems returns the fresh items of a listing page, skipping the
	// URLs already present in existing
	FetchNewItems(ctx context.Context, url string, existing map[string]struct{}, summarizer Summarizer) ([]Item, error)

	// FetchItemDetails returns the description and high-resolution image of
	// one item page. Failures are reported inside the description.
	FetchItemDetails(ctx context.Context, itemURL string, summarizer Summarizer) (string, string)

	// Close releases the HTTP client and any delegates
	Close() error
}

// Options carries the dependencies shared by every extractor
type Options struct {
	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration

	// Recency filters listing cards by their time label, defaulting to a
	// 45 minute window
	Recency RecencyPolicy

	// Cache remembers marketplaces that throttled us; nil disables blocking
	Cache cache.CacheService

	// RateLimitBlock is how long a throttled marketplace stays blocked
	RateLimitBlock time.Duration

	// Now returns the current time
	Now func() time.Time

	// Transport overrides the HTTP transport, mostly in tests
	Transport http.RoundTripper
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RateLimitBlock <= 0 {
		o.RateLimitBlock = 300 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Recency == nil {
		o.Recency = &helpers.TimeWindow{Window: 45 * time.Minute, Now: o.Now}
	}
	return o
}
