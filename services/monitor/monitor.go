package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/internal/metrics"
	"github.com/Wonsky1/topn-worker/internal/scraper"
	"github.com/Wonsky1/topn-worker/logger"
	"github.com/Wonsky1/topn-worker/services/publisher"
	"github.com/Wonsky1/topn-worker/services/store"

	"github.com/google/uuid"
)

// Store is the persistence API the monitor reads tasks from and writes items to
type Store interface {
	GetAllTasks(ctx context.Context) ([]store.Task, error)
	GetItemsBySourceURL(ctx context.Context, sourceURL string, limit int) ([]store.StoredItem, error)
	CreateItem(ctx context.Context, item store.ItemData) error
}

// ScraperProvider resolves the extractor responsible for a task URL
type ScraperProvider interface {
	ForURL(rawURL string) (scraper.Type, scraper.Scraper, error)
	Close() error
}

// Config tunes one monitoring cycle
type Config struct {
	// URLDelay is the pause after each successfully processed URL
	URLDelay time.Duration
	// ExistingItemsLimit caps the stored items fetched for deduplication
	ExistingItemsLimit int
}

// Monitor scrapes every task URL and persists the new items it finds
type Monitor struct {
	store      Store
	scrapers   ScraperProvider
	publisher  publisher.Publisher
	summarizer scraper.Summarizer
	cfg        Config
	log        *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a monitor. pub may be nil when item events are not published.
func New(st Store, scrapers ScraperProvider, pub publisher.Publisher, cfg Config) *Monitor {
	if cfg.ExistingItemsLimit <= 0 {
		cfg.ExistingItemsLimit = 10000
	}
	return &Monitor{
		store:      st,
		scrapers:   scrapers,
		publisher:  pub,
		summarizer: scraper.PassthroughSummarizer{},
		cfg:        cfg,
		log:        logger.ForMonitor(),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Run repeats RunOnce every interval until ctx is done. Cycle failures are
// logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	for {
		m.log.Info().Msg("Starting new item search cycle")
		start := time.Now()
		if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.log.Error().Err(err).Msg("Error in item finder")
		}
		if ctx.Err() != nil {
			return nil
		}

		m.log.Info().
			Dur("elapsed", time.Since(start)).
			Msgf("Sleeping for %s before next cycle", interval)
		if err := m.sleep(ctx, interval); err != nil {
			return nil
		}
	}
}

// RunOnce scrapes each distinct task URL once. Only a failure to list the
// tasks is returned; per-URL failures are logged and skipped.
func (m *Monitor) RunOnce(ctx context.Context) error {
	log := m.log.WithField("cycle_id", uuid.NewString())

	tasks, err := m.store.GetAllTasks(ctx)
	if err != nil {
		metrics.ObserveCycle(metrics.StatusFailed)
		log.Error().Err(err).Msg("Error in run_once")
		return fmt.Errorf("fetch tasks: %w", err)
	}

	urls := distinctURLs(tasks)
	log.Info().Msgf("ItemMonitor starting scraping loop for %d URLs", len(urls))

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}

		added, err := m.processURL(ctx, log, url)
		if err != nil {
			metrics.ObserveSource(metrics.StatusFailed)
			log.Error().Err(err).Str("url", url).Msg("Failed fetching items")
			continue
		}
		metrics.ObserveSource(metrics.StatusSuccess)
		log.Info().Str("url", url).Int("added", added).Msgf("URL processed; added %d new items", added)

		if err := m.sleep(ctx, m.cfg.URLDelay); err != nil {
			return err
		}
	}

	m.trimStreams(ctx)
	metrics.ObserveCycle(metrics.StatusSuccess)
	log.Info().Msg("ItemMonitor finished all URLs")
	return nil
}

// processURL scrapes one task URL and persists what it finds
func (m *Monitor) processURL(ctx context.Context, log *logger.Logger, url string) (int, error) {
	stored, err := m.store.GetItemsBySourceURL(ctx, url, m.cfg.ExistingItemsLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch existing items: %w", err)
	}
	existing := make(map[string]struct{}, len(stored))
	for _, item := range stored {
		existing[item.ItemURL] = struct{}{}
	}

	kind, s, err := m.scrapers.ForURL(url)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("scraper", string(kind)).Int("existing", len(existing)).Str("url", url).Msg("Scraping source")

	items, err := s.FetchNewItems(ctx, url, existing, m.summarizer)
	if err != nil {
		return 0, fmt.Errorf("fetch new items: %w", err)
	}

	m.persistItems(ctx, log, items, url)
	return len(items), nil
}

// persistItems stores each item independently; failures are logged
func (m *Monitor) persistItems(ctx context.Context, log *logger.Logger, items []scraper.Item, sourceURL string) {
	for i, item := range items {
		data := m.itemData(item, sourceURL)
		if i == 0 && logger.IsDebugEnabled() {
			if payload, err := json.Marshal(data); err == nil {
				log.Debug().RawJSON("item", payload).Msg("First item of source")
			}
		}

		if err := m.store.CreateItem(ctx, data); err != nil {
			metrics.ObserveItemPersisted(data.Source, metrics.StatusFailed)
			log.Error().Err(err).Str("item_url", item.ItemURL).Msg("Failed to persist item")
			continue
		}
		metrics.ObserveItemPersisted(data.Source, metrics.StatusSuccess)
		log.Info().Msgf("New item persisted: %s | %s", item.Title, item.ItemURL)

		m.publish(ctx, log, data)
	}
}

// itemData builds the persisted payload. The source label follows the item
// URL, not the task URL.
func (m *Monitor) itemData(item scraper.Item, sourceURL string) store.ItemData {
	var createdAt *string
	if item.CreatedAt != nil {
		iso := helpers.NaiveISO(*item.CreatedAt)
		createdAt = &iso
	}

	return store.ItemData{
		ItemURL:         item.ItemURL,
		Title:           item.Title,
		Price:           item.Price,
		Location:        item.Location,
		CreatedAt:       createdAt,
		CreatedAtPretty: item.CreatedAtPretty,
		ImageURL:        item.ImageURL,
		Description:     item.Description,
		SourceURL:       sourceURL,
		Source:          scraper.ProperScraper(item.ItemURL).Source(),
		FirstSeen:       helpers.NaiveISO(m.now().In(helpers.Warsaw)),
	}
}

func (m *Monitor) publish(ctx context.Context, log *logger.Logger, data store.ItemData) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("item_url", data.ItemURL).Msg("Failed to encode item event")
		return
	}
	if err := m.publisher.Publish(ctx, data.Source, payload); err != nil {
		log.Error().Err(err).Str("item_url", data.ItemURL).Msg("Failed to publish item event")
	}
}

func (m *Monitor) trimStreams(ctx context.Context) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.TrimStreams(ctx); err != nil {
		log := m.log.WithError(err)
		log.Warn().Msg("Failed to trim item stream")
	}
}

// Close releases every extractor owned by the monitor
func (m *Monitor) Close() error {
	m.log.Info().Msg("Closing ItemMonitor and scraper resources")
	return m.scrapers.Close()
}

// distinctURLs returns each non-empty task URL once, in first-seen order
func distinctURLs(tasks []store.Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	urls := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.URL == "" {
			continue
		}
		if _, ok := seen[task.URL]; ok {
			continue
		}
		seen[task.URL] = struct{}{}
		urls = append(urls, task.URL)
	}
	return urls
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
