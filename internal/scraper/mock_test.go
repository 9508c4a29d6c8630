package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, errors.New("cache miss")
}

func (m *MockCacheService) Set(key string, value []byte, _ time.Duration) error {
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	return nil
}

type page struct {
	status int
	body   string
}

// fakeTransport serves canned pages by absolute URL and records requests
type fakeTransport struct {
	mu       sync.Mutex
	pages    map[string]page
	requests []string
	err      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{pages: make(map[string]page)}
}

func (f *fakeTransport) add(url, body string) *fakeTransport {
	f.pages[url] = page{status: http.StatusOK, body: body}
	return f
}

func (f *fakeTransport) addStatus(url string, status int) *fakeTransport {
	f.pages[url] = page{status: status}
	return f
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.URL.String())
	if f.err != nil {
		return nil, f.err
	}

	p, ok := f.pages[req.URL.String()]
	if !ok {
		p = page{status: http.StatusNotFound, body: "not found"}
	}
	return &http.Response{
		StatusCode: p.status,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader(p.body)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// recencySequence answers WithinLastMinutes from a fixed script, repeating
// the last answer once exhausted
type recencySequence struct {
	answers []bool
	seen    []string
}

func (r *recencySequence) WithinLastMinutes(timeStr string) bool {
	r.seen = append(r.seen, timeStr)
	if len(r.answers) == 0 {
		return false
	}
	answer := r.answers[0]
	if len(r.answers) > 1 {
		r.answers = r.answers[1:]
	}
	return answer
}

func always(answer bool) *recencySequence {
	return &recencySequence{answers: []bool{answer}}
}

// fakeScraper is a Scraper returning canned details
type fakeScraper struct {
	description string
	image       string
	detailCalls []string
	closed      int
	closeErr    error
}

func (f *fakeScraper) FetchNewItems(context.Context, string, map[string]struct{}, Summarizer) ([]Item, error) {
	return []Item{}, nil
}

func (f *fakeScraper) FetchItemDetails(_ context.Context, itemURL string, _ Summarizer) (string, string) {
	f.detailCalls = append(f.detailCalls, itemURL)
	return f.description, f.image
}

func (f *fakeScraper) Close() error {
	f.closed++
	return f.closeErr
}

// fakeRegistry returns a registry building a single shared fake for t and
// counts constructions
func fakeRegistry(t Type, fake *fakeScraper, constructed *int) func() map[Type]Constructor {
	return func() map[Type]Constructor {
		return map[Type]Constructor{
			t: func(Options) Scraper {
				*constructed++
				return fake
			},
		}
	}
}

var fixedNow = time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC)

func testOptions(transport http.RoundTripper, recency RecencyPolicy) Options {
	return Options{
		RequestTimeout: time.Second,
		Recency:        recency,
		Now:            func() time.Time { return fixedNow },
		Transport:      transport,
	}
}
