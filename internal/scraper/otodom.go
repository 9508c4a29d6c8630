package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Wonsky1/topn-worker/internal/metrics"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const nextDataSelector = `script#__NEXT_DATA__`

// imageKeys are probed in order on every image entry
var imageKeys = []string{"large", "medium", "link", "url"}

// OtodomScraper reads item details from the Next.js payload embedded in
// Otodom pages. Listing discovery is not supported yet.
type OtodomScraper struct {
	BaseScraper
}

// NewOtodomScraper creates an Otodom extractor with its own HTTP client
func NewOtodomScraper(opts Options) *OtodomScraper {
	opts = opts.withDefaults()
	return &OtodomScraper{BaseScraper: newBaseScraper(Otodom, opts)}
}

// FetchNewItems always returns an empty list
func (s *OtodomScraper) FetchNewItems(_ context.Context, url string, _ map[string]struct{}, _ Summarizer) ([]Item, error) {
	s.log.Warn().Str("url", url).Msg("Otodom listing page scraping not yet implemented")
	return []Item{}, nil
}

// FetchItemDetails fetches the description and first image of one listing
func (s *OtodomScraper) FetchItemDetails(ctx context.Context, itemURL string, _ Summarizer) (string, string) {
	reader, err := s.fetch(ctx, itemURL)
	if err == nil {
		var doc *goquery.Document
		if doc, err = s.createDocument(reader); err == nil {
			metrics.ObserveDetailFetch(string(s.kind), metrics.StatusSuccess)
			return s.extractFromNextData(doc)
		}
	}

	metrics.ObserveDetailFetch(string(s.kind), metrics.StatusFailed)
	s.log.Error().Err(err).Str("url", itemURL).Msg("Failed to load Otodom details")
	return fmt.Sprintf("Failed to load description: %v", err), ""
}

// Close releases the HTTP client
func (s *OtodomScraper) Close() error {
	s.closeClient()
	return nil
}

// extractFromNextData pulls props.pageProps.ad out of the __NEXT_DATA__
// script. Missing or malformed data yields empty strings.
func (s *OtodomScraper) extractFromNextData(doc *goquery.Document) (string, string) {
	payload := doc.Find(nextDataSelector).First().Text()
	if strings.TrimSpace(payload) == "" {
		return "", ""
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		s.log.Warn().Err(err).Msg("Invalid JSON in __NEXT_DATA__")
		return "", ""
	}

	ad := lookup(data, "props", "pageProps", "ad")
	if ad == nil {
		return "", ""
	}

	description := ""
	if raw, ok := ad["description"].(string); ok {
		text, err := htmlToText(html.UnescapeString(raw))
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to parse Otodom description")
		}
		description = text
	}

	images := ad["images"]
	if isFalsy(images) {
		images = ad["photos"]
	}
	return description, firstImage(images)
}

// lookup walks nested JSON objects along path
func lookup(data map[string]any, path ...string) map[string]any {
	current := data
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// firstImage returns the first string value found under imageKeys, scanning
// entries in order
func firstImage(images any) string {
	list, ok := images.([]any)
	if !ok {
		return ""
	}
	for _, entry := range list {
		img, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range imageKeys {
			if value, ok := img[key].(string); ok {
				if value != "" {
					return value
				}
				break
			}
		}
	}
	return ""
}

// isFalsy reports whether a decoded JSON value is empty
func isFalsy(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case bool:
		return !value
	case float64:
		return value == 0
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}
