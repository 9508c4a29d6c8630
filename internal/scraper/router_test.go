package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperScraper(t *testing.T) {
	tests := []struct {
		url      string
		expected Type
	}{
		{"https://www.olx.pl/d/oferta/mieszkanie-CID3-ID1.html", OLX},
		{"http://otodom.pl/123", Otodom},
		{"https://www.otodom.pl/pl/oferta/x", Otodom},
		{"https://WWW.OTODOM.PL/pl/oferta/x", Otodom},
		{"https://example.com/olx/otodom", OLX},
		{"otodom.pl/no-scheme", OLX},
		{"", OLX},
		{"http://%zz", OLX},
		{"https://otodom.olx.pl/", Otodom},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProperScraper(tt.url))
		})
	}
}

func TestTypeSource(t *testing.T) {
	assert.Equal(t, "OLX", OLX.Source())
	assert.Equal(t, "OTODOM", Otodom.Source())
}

func TestRegistryCoversEveryType(t *testing.T) {
	registry := Registry()
	require.Len(t, registry, 2)

	olx := registry[OLX](testOptions(newFakeTransport(), nil))
	defer olx.Close()
	assert.IsType(t, &OLXScraper{}, olx)

	otodom := registry[Otodom](testOptions(newFakeTransport(), nil))
	defer otodom.Close()
	assert.IsType(t, &OtodomScraper{}, otodom)
}

func TestPoolConstructsOncePerType(t *testing.T) {
	fake := &fakeScraper{}
	constructed := 0
	pool := newPoolWith(fakeRegistry(Otodom, fake, &constructed), Options{})

	first, err := pool.Get(Otodom)
	require.NoError(t, err)
	second, err := pool.Get(Otodom)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, constructed)
	assert.Equal(t, 1, pool.Len())
}

func TestPoolUnknownType(t *testing.T) {
	pool := newPoolWith(fakeRegistry(Otodom, &fakeScraper{}, new(int)), Options{})

	_, err := pool.Get(OLX)
	assert.Error(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestPoolForURL(t *testing.T) {
	fake := &fakeScraper{description: "d", image: "i"}
	pool := newPoolWith(fakeRegistry(Otodom, fake, new(int)), Options{})

	kind, s, err := pool.ForURL("https://www.otodom.pl/pl/oferta/1")
	require.NoError(t, err)
	assert.Equal(t, Otodom, kind)

	desc, img := s.FetchItemDetails(context.Background(), "https://www.otodom.pl/pl/oferta/1", PassthroughSummarizer{})
	assert.Equal(t, "d", desc)
	assert.Equal(t, "i", img)
}

func TestPoolCloseClosesEachOnce(t *testing.T) {
	fake := &fakeScraper{closeErr: errors.New("boom")}
	pool := newPoolWith(fakeRegistry(Otodom, fake, new(int)), Options{})

	require.NoError(t, pool.Close(), "closing an empty pool is a no-op")

	_, err := pool.Get(Otodom)
	require.NoError(t, err)

	err = pool.Close()
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, fake.closed)
	assert.Equal(t, 0, pool.Len())

	require.NoError(t, pool.Close())
	assert.Equal(t, 1, fake.closed)
}

func TestPassthroughSummarizer(t *testing.T) {
	out, err := PassthroughSummarizer{}.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "text", out)
}
