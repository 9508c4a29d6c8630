package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wonsky1/topn-worker/internal/scraper"
	"github.com/Wonsky1/topn-worker/services/publisher"
	"github.com/Wonsky1/topn-worker/services/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore implements Store for testing
type MockStore struct {
	mu          sync.Mutex
	tasks       []store.Task
	tasksErr    error
	existing    []store.StoredItem
	existingErr map[string]error
	createErr   map[string]error
	created     []store.ItemData
	lookups     []string
	limits      []int
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) GetAllTasks(context.Context) ([]store.Task, error) {
	return m.tasks, m.tasksErr
}

func (m *MockStore) GetItemsBySourceURL(_ context.Context, sourceURL string, limit int) ([]store.StoredItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, sourceURL)
	m.limits = append(m.limits, limit)
	if err := m.existingErr[sourceURL]; err != nil {
		return nil, err
	}
	return m.existing, nil
}

func (m *MockStore) CreateItem(_ context.Context, item store.ItemData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[item.ItemURL]; err != nil {
		return err
	}
	m.created = append(m.created, item)
	return nil
}

// MockScraper returns two new items per URL
type MockScraper struct {
	fetchErr map[string]error
	calls    []string
	existing []map[string]struct{}
	closed   bool
}

var _ scraper.Scraper = (*MockScraper)(nil)

func (m *MockScraper) FetchNewItems(_ context.Context, url string, existing map[string]struct{}, _ scraper.Summarizer) ([]scraper.Item, error) {
	m.calls = append(m.calls, url)
	m.existing = append(m.existing, existing)
	if err := m.fetchErr[url]; err != nil {
		return nil, err
	}
	return []scraper.Item{
		{Title: "t-" + url, Price: "p", ImageURL: "i", Location: "l", ItemURL: url + "/new1", Description: "d", CreatedAtPretty: "cp"},
		{Title: "t2-" + url, Price: "p2", ImageURL: "i2", Location: "l2", ItemURL: url + "/new2", Description: "d2", CreatedAtPretty: "cp2"},
	}, nil
}

func (m *MockScraper) FetchItemDetails(context.Context, string, scraper.Summarizer) (string, string) {
	return "", ""
}

func (m *MockScraper) Close() error {
	m.closed = true
	return nil
}

// MockProvider hands out one scraper for every URL
type MockProvider struct {
	scraper *MockScraper
	err     map[string]error
	closed  int
}

func (p *MockProvider) ForURL(rawURL string) (scraper.Type, scraper.Scraper, error) {
	if err := p.err[rawURL]; err != nil {
		return "", nil, err
	}
	return scraper.ProperScraper(rawURL), p.scraper, nil
}

func (p *MockProvider) Close() error {
	p.closed++
	return p.scraper.Close()
}

// MockPublisher records published events
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	trims    int
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(_ context.Context, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[key] = append(m.messages[key], append([]byte(nil), message...))
	return nil
}

func (m *MockPublisher) TrimStreams(context.Context) error {
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

var fixedNow = time.Date(2024, 5, 10, 12, 40, 0, 0, time.UTC)

func newTestMonitor(st *MockStore, pub publisher.Publisher) (*Monitor, *MockProvider, *sleepRecorder) {
	provider := &MockProvider{scraper: &MockScraper{}}
	m := New(st, provider, pub, Config{URLDelay: 3 * time.Second, ExistingItemsLimit: 10000})
	sleeper := &sleepRecorder{}
	m.sleep = sleeper.sleep
	m.now = func() time.Time { return fixedNow }
	return m, provider, sleeper
}

func defaultStore() *MockStore {
	return &MockStore{
		tasks: []store.Task{
			{URL: "https://u1"},
			{URL: "https://u1"},
			{URL: "https://u2"},
		},
		existing: []store.StoredItem{{ItemURL: "https://old"}},
	}
}

func TestRunOncePersistsItemsAndSleepsBetween(t *testing.T) {
	st := defaultStore()
	m, provider, sleeper := newTestMonitor(st, nil)
	defer m.Close()

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Equal(t, []string{"https://u1", "https://u2"}, provider.scraper.calls, "duplicate task URLs are scraped once")
	assert.Len(t, st.created, 4)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeper.calls)
	assert.Equal(t, []int{10000, 10000}, st.limits)

	for _, existing := range provider.scraper.existing {
		assert.Contains(t, existing, "https://old")
	}
}

func TestRunOnceNoTasks(t *testing.T) {
	st := &MockStore{}
	m, provider, sleeper := newTestMonitor(st, nil)

	require.NoError(t, m.RunOnce(context.Background()))
	assert.Empty(t, provider.scraper.calls)
	assert.Empty(t, sleeper.calls)
	assert.Empty(t, st.created)
}

func TestRunOnceHandlesExistingLookupErrors(t *testing.T) {
	st := defaultStore()
	st.existingErr = map[string]error{"https://u1": errors.New("boom")}
	m, provider, sleeper := newTestMonitor(st, nil)

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Equal(t, []string{"https://u2"}, provider.scraper.calls)
	assert.Len(t, st.created, 2)
	assert.Len(t, sleeper.calls, 1, "a failed URL does not sleep")
}

func TestRunOnceHandlesScraperErrors(t *testing.T) {
	st := defaultStore()
	m, provider, sleeper := newTestMonitor(st, nil)
	provider.scraper.fetchErr = map[string]error{"https://u2": errors.New("listing down")}

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Len(t, st.created, 2)
	assert.Len(t, sleeper.calls, 1)
}

func TestRunOnceHandlesRoutingErrors(t *testing.T) {
	st := defaultStore()
	m, provider, _ := newTestMonitor(st, nil)
	provider.err = map[string]error{"https://u1": errors.New("no scraper")}

	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, []string{"https://u2"}, provider.scraper.calls)
}

func TestRunOnceReturnsTaskError(t *testing.T) {
	st := &MockStore{tasksErr: errors.New("fatal")}
	m, provider, _ := newTestMonitor(st, nil)

	err := m.RunOnce(context.Background())
	assert.ErrorContains(t, err, "fatal")
	assert.Empty(t, provider.scraper.calls)
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	st := defaultStore()
	m, provider, _ := newTestMonitor(st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := m.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"https://u1"}, provider.scraper.calls)
}

func TestPersistItemsContinuesAfterFailure(t *testing.T) {
	st := defaultStore()
	st.tasks = []store.Task{{URL: "https://u1"}}
	st.createErr = map[string]error{"https://u1/new1": errors.New("duplicate")}
	m, _, sleeper := newTestMonitor(st, nil)

	require.NoError(t, m.RunOnce(context.Background()))

	require.Len(t, st.created, 1)
	assert.Equal(t, "https://u1/new2", st.created[0].ItemURL)
	assert.Len(t, sleeper.calls, 1, "persistence failures do not fail the URL")
}

func TestPersistItemsSetsSourceField(t *testing.T) {
	st := &MockStore{}
	m, _, _ := newTestMonitor(st, nil)

	items := []scraper.Item{
		{Title: "a", ItemURL: "https://otodom.pl/x"},
		{Title: "b", ItemURL: "https://www.olx.pl/y"},
		{Title: "c", ItemURL: "https://example.com/z"},
	}
	m.persistItems(context.Background(), m.log, items, "SRC")

	require.Len(t, st.created, 3)
	var sources, sourceURLs []string
	for _, p := range st.created {
		sources = append(sources, p.Source)
		sourceURLs = append(sourceURLs, p.SourceURL)
	}
	assert.Equal(t, []string{"OTODOM", "OLX", "OLX"}, sources)
	assert.Equal(t, []string{"SRC", "SRC", "SRC"}, sourceURLs)
}

func TestItemDataTimestamps(t *testing.T) {
	m, _, _ := newTestMonitor(&MockStore{}, nil)

	created := time.Date(2024, 5, 10, 14, 34, 0, 0, time.FixedZone("CEST", 2*60*60))
	data := m.itemData(scraper.Item{ItemURL: "https://www.olx.pl/y", CreatedAt: &created}, "SRC")
	require.NotNil(t, data.CreatedAt)
	assert.Equal(t, "2024-05-10T14:34:00", *data.CreatedAt)
	// 12:40 UTC is 14:40 in Warsaw, zone dropped
	assert.Equal(t, "2024-05-10T14:40:00", data.FirstSeen)

	data = m.itemData(scraper.Item{ItemURL: "https://www.olx.pl/y"}, "SRC")
	assert.Nil(t, data.CreatedAt)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"created_at":null`)
}

func TestRunOncePublishesPersistedItems(t *testing.T) {
	st := defaultStore()
	st.createErr = map[string]error{"https://u2/new2": errors.New("duplicate")}
	pub := NewMockPublisher()
	m, _, _ := newTestMonitor(st, pub)

	require.NoError(t, m.RunOnce(context.Background()))

	require.Len(t, pub.messages["OLX"], 3, "only persisted items are published")
	var event store.ItemData
	require.NoError(t, json.Unmarshal(pub.messages["OLX"][0], &event))
	assert.Equal(t, "https://u1/new1", event.ItemURL)
	assert.Equal(t, "https://u1", event.SourceURL)
	assert.Equal(t, 1, pub.trims)
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	st := defaultStore()
	st.tasks = []store.Task{{URL: "https://u1"}}
	m, provider, _ := newTestMonitor(st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var intervals []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		intervals = append(intervals, d)
		if len(provider.scraper.calls) >= 2 && d == 10*time.Second {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, m.Run(ctx, 10*time.Second))
	assert.Equal(t, []string{"https://u1", "https://u1"}, provider.scraper.calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 10 * time.Second, 3 * time.Second, 10 * time.Second}, intervals)
}

func TestRunSurvivesCycleErrors(t *testing.T) {
	st := &MockStore{tasksErr: errors.New("store down")}
	m, _, _ := newTestMonitor(st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		cycles++
		if cycles == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, m.Run(ctx, time.Second))
	assert.Equal(t, 2, cycles)
}

func TestCloseDelegatesToScrapers(t *testing.T) {
	m, provider, _ := newTestMonitor(&MockStore{}, nil)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, provider.closed)
	assert.True(t, provider.scraper.closed)
}

func TestDistinctURLs(t *testing.T) {
	urls := distinctURLs([]store.Task{{URL: "b"}, {URL: ""}, {URL: "a"}, {URL: "b"}})
	assert.Equal(t, []string{"b", "a"}, urls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
