package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/logger"
	scrapeerrors "github.com/Wonsky1/topn-worker/pkg/errors"
	"github.com/Wonsky1/topn-worker/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// BaseScraper provides the HTTP plumbing shared by all extractors
type BaseScraper struct {
	kind      Type
	client    *http.Client
	headers   map[string]string
	cacheSvc  cache.CacheService
	blockTime time.Duration
	log       *logger.Logger
}

func newBaseScraper(kind Type, opts Options) BaseScraper {
	client := helpers.NewHTTPClient(opts.RequestTimeout)
	if opts.Transport != nil {
		client.Transport = opts.Transport
	}
	return BaseScraper{
		kind:      kind,
		client:    client,
		headers:   helpers.DefaultHeaders,
		cacheSvc:  opts.Cache,
		blockTime: opts.RateLimitBlock,
		log:       logger.ForScraper(string(kind)),
	}
}

// fetch downloads url unless the marketplace is currently blocked. A
// throttling answer blocks the marketplace for blockTime.
func (b *BaseScraper) fetch(ctx context.Context, url string) (io.Reader, error) {
	if b.cacheSvc != nil && cache.IsBlocked(b.cacheSvc, string(b.kind)) {
		return nil, scrapeerrors.NewRateLimit(string(b.kind), b.blockTime)
	}

	body, err := helpers.Fetch(ctx, b.client, string(b.kind), url, b.headers)
	if err != nil {
		if b.cacheSvc != nil && scrapeerrors.Is(err, scrapeerrors.ErrorTypeRateLimit) {
			if cerr := cache.Block(b.cacheSvc, string(b.kind), b.blockTime); cerr != nil {
				b.log.Warn().Err(cerr).Msg("Failed to store rate limit block")
			} else {
				b.log.Warn().Dur("block", b.blockTime).Msg("Rate limited, blocking requests")
			}
		}
		return nil, err
	}

	return body, nil
}

// createDocument creates a goquery document from a reader
func (b *BaseScraper) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, scrapeerrors.NewParsing(string(b.kind), "failed to parse HTML", err)
	}
	return doc, nil
}

// closeClient drops idle connections; it may be called repeatedly
func (b *BaseScraper) closeClient() {
	b.client.CloseIdleConnections()
}
