package scraper

import (
	"net/url"
	"strings"
	"sync"
)

// Type identifies a marketplace extractor
type Type string

const (
	// OLX is the general classifieds marketplace and the fallback type
	OLX Type = "olx"
	// Otodom is the real-estate marketplace
	Otodom Type = "otodom"
)

// Source returns the upper-cased label stored with persisted items
func (t Type) Source() string {
	return strings.ToUpper(string(t))
}

// ProperScraper picks the extractor type for rawURL from its host name.
// Unknown hosts, and strings that do not parse as URLs, fall back to OLX.
func ProperScraper(rawURL string) Type {
	u, err := url.Parse(rawURL)
	if err != nil {
		return OLX
	}

	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, string(Otodom)):
		return Otodom
	case strings.Contains(host, string(OLX)):
		return OLX
	default:
		return OLX
	}
}

// Constructor builds an extractor from shared options
type Constructor func(opts Options) Scraper

var (
	registryOnce sync.Once
	registry     map[Type]Constructor
)

// Registry maps every Type to its constructor. It is built on first use so
// that extractors may themselves depend on it for delegation.
func Registry() map[Type]Constructor {
	registryOnce.Do(func() {
		registry = map[Type]Constructor{
			OLX:    func(opts Options) Scraper { return NewOLXScraper(opts) },
			Otodom: func(opts Options) Scraper { return NewOtodomScraper(opts) },
		}
	})
	return registry
}
