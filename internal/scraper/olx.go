package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/internal/metrics"

	"github.com/PuerkitoBio/goquery"
)

const (
	olxBaseURL = "https://www.olx.pl"

	noPrice          = "Brak ceny"
	todayMarker      = "Dzisiaj"
	todaySeparator   = "Dzisiaj o "
	descriptionLimit = 500
	prettyLayout     = "02.01.2006 - *15:04*"
)

// olxSelectors are the CSS selectors of OLX listing and item pages
var olxSelectors = struct {
	Card         string
	LocationDate string
	TitleLink    string
	Price        string
	Image        string
	Description  string
	Gallery      string
}{
	Card:         `div[data-testid="l-card"]`,
	LocationDate: `p[data-testid="location-date"]`,
	TitleLink:    `div[data-cy="ad-card-title"] a`,
	Price:        `p[data-testid="ad-price"]`,
	Image:        `div[data-testid="image-container"] img`,
	Description:  `div[data-cy="ad_description"]`,
	Gallery:      `img[data-testid^="swiper-image"]`,
}

// OLXScraper extracts today's listings from OLX search pages. Item details
// hosted on other marketplaces are fetched through delegate extractors.
type OLXScraper struct {
	BaseScraper
	baseURL   string
	recency   RecencyPolicy
	now       func() time.Time
	delegates *Pool
}

// NewOLXScraper creates an OLX extractor with its own HTTP client
func NewOLXScraper(opts Options) *OLXScraper {
	opts = opts.withDefaults()
	return &OLXScraper{
		BaseScraper: newBaseScraper(OLX, opts),
		baseURL:     olxBaseURL,
		recency:     opts.Recency,
		now:         opts.Now,
		delegates:   NewPool(opts),
	}
}

// FetchNewItems returns the listings posted today within the recency window
// whose URLs are not in existing, in document order.
func (s *OLXScraper) FetchNewItems(ctx context.Context, url string, existing map[string]struct{}, summarizer Summarizer) ([]Item, error) {
	s.log.Info().Str("url", url).Msg("Fetching OLX items")

	reader, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := s.createDocument(reader)
	if err != nil {
		return nil, err
	}

	cards := doc.Find(olxSelectors.Card)
	s.log.Debug().Int("cards", cards.Length()).Msg("Parsed OLX listing page")

	items := make([]Item, 0)
	skippedExisting := 0
	for i := range cards.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, reason := s.processCard(ctx, cards.Eq(i), existing, summarizer)
		if item == nil {
			metrics.ObserveItemSkipped(string(s.kind), reason)
			if reason == metrics.ReasonExisting {
				skippedExisting++
			}
			continue
		}
		items = append(items, *item)
	}

	metrics.ObserveItemsFound(string(s.kind), len(items))
	s.log.Info().
		Int("found", len(items)).
		Int("skipped_existing", skippedExisting).
		Msgf("OLX scraper found %d new items, skipped %d existing", len(items), skippedExisting)
	return items, nil
}

// processCard turns one listing card into an item, or returns the reason it
// was skipped
func (s *OLXScraper) processCard(ctx context.Context, card *goquery.Selection, existing map[string]struct{}, summarizer Summarizer) (*Item, string) {
	label := strings.TrimSpace(card.Find(olxSelectors.LocationDate).First().Text())
	if !strings.Contains(label, todayMarker) {
		s.log.Debug().Str("label", label).Msg("Skipping non-today item")
		return nil, metrics.ReasonNoToday
	}

	location, timeStr, err := helpers.SplitPair(label, todaySeparator)
	if err != nil {
		s.log.Debug().Str("label", label).Msg("Skipping item with unexpected date label")
		return nil, metrics.ReasonNoToday
	}
	location = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(location), "-"))
	timeStr = strings.TrimSpace(timeStr)

	if !s.recency.WithinLastMinutes(timeStr) {
		s.log.Debug().Str("time", timeStr).Msg("Skipping old item")
		return nil, metrics.ReasonStale
	}

	link := card.Find(olxSelectors.TitleLink).First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		s.log.Debug().Msg("Skipping item without link")
		return nil, metrics.ReasonNoURL
	}
	itemURL := href
	if !strings.HasPrefix(itemURL, "http") {
		itemURL = s.baseURL + itemURL
	}

	if _, seen := existing[itemURL]; seen {
		return nil, metrics.ReasonExisting
	}

	price := noPrice
	if p := card.Find(olxSelectors.Price).First(); p.Length() > 0 {
		price = strings.TrimSpace(p.Text())
	}

	imageURL, _ := card.Find(olxSelectors.Image).First().Attr("src")

	description, highres := s.fetchDetails(ctx, itemURL, summarizer)
	if highres != "" {
		imageURL = highres
	}

	item := &Item{
		Title:       strings.TrimSpace(link.Text()),
		Price:       price,
		Location:    location,
		ImageURL:    imageURL,
		ItemURL:     itemURL,
		Description: description,
	}
	if createdAt, pretty, err := parseTimes(timeStr, s.now()); err == nil {
		item.CreatedAt = &createdAt
		item.CreatedAtPretty = pretty
	} else {
		s.log.Debug().Err(err).Str("time", timeStr).Msg("Unparseable posting time")
	}
	return item, ""
}

// fetchDetails routes itemURL and fetches its details either directly or
// through the delegate registered for its host
func (s *OLXScraper) fetchDetails(ctx context.Context, itemURL string, summarizer Summarizer) (string, string) {
	t := ProperScraper(itemURL)
	if t == OLX {
		return s.FetchItemDetails(ctx, itemURL, summarizer)
	}

	delegate, err := s.delegates.Get(t)
	if err != nil {
		s.log.Error().Err(err).Str("url", itemURL).Msg("No delegate for item details")
		return fmt.Sprintf("Failed to load description: %v", err), ""
	}
	s.log.Debug().Str("delegate", string(t)).Str("url", itemURL).Msg("Delegating item details")
	return delegate.FetchItemDetails(ctx, itemURL, summarizer)
}

// FetchItemDetails fetches the description and gallery image of one OLX item
func (s *OLXScraper) FetchItemDetails(ctx context.Context, itemURL string, _ Summarizer) (string, string) {
	reader, err := s.fetch(ctx, itemURL)
	if err == nil {
		var doc *goquery.Document
		if doc, err = s.createDocument(reader); err == nil {
			metrics.ObserveDetailFetch(string(s.kind), metrics.StatusSuccess)
			description := helpers.Truncate(extractOLXDescription(doc), descriptionLimit)
			return description, extractHighresImage(doc)
		}
	}

	metrics.ObserveDetailFetch(string(s.kind), metrics.StatusFailed)
	s.log.Error().Err(err).Str("url", itemURL).Msg("Failed to load item details")
	return fmt.Sprintf("Failed to load description: %v", err), ""
}

// Close releases the HTTP client and every delegate
func (s *OLXScraper) Close() error {
	s.closeClient()
	return s.delegates.Close()
}

// extractOLXDescription joins text nodes with a space so words split across
// <br> and inline tags stay apart
func extractOLXDescription(doc *goquery.Document) string {
	return textNodes(doc.Find(olxSelectors.Description).First(), " ")
}

// extractHighresImage returns the first gallery image, preferring src and
// otherwise the widest srcset variant
func extractHighresImage(doc *goquery.Document) string {
	img := doc.Find(olxSelectors.Gallery).First()
	if img.Length() == 0 {
		return ""
	}
	if src, ok := img.Attr("src"); ok && src != "" {
		return src
	}

	srcset, _ := img.Attr("srcset")
	bestURL, bestWidth := "", 0
	for _, variant := range strings.Split(srcset, ",") {
		urlPart, sizePart, err := helpers.SplitPair(strings.TrimSpace(variant), " ")
		if err != nil {
			continue
		}
		width, err := strconv.Atoi(strings.TrimRight(sizePart, "w"))
		if err != nil {
			continue
		}
		if width > bestWidth {
			bestWidth, bestURL = width, urlPart
		}
	}
	return bestURL
}

// parseTimes reads an HH:MM label as a UTC time on now's date and returns
// it in Warsaw time together with its display form
func parseTimes(timeStr string, now time.Time) (time.Time, string, error) {
	parsed, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, "", err
	}

	nowUTC := now.UTC()
	provided := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
	local := provided.In(helpers.Warsaw)
	return local, local.Format(prettyLayout), nil
}
