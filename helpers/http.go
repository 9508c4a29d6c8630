package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	scrapeerrors "github.com/Wonsky1/topn-worker/pkg/errors"

	"golang.org/x/net/html/charset"
)

const maxRedirects = 10

// Header sets sent with every marketplace request
var (
	// DefaultHeaders mimics a desktop Chrome on macOS browsing from Poland
	DefaultHeaders = map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Encoding": "gzip, deflate, br, zstd",
		"Accept-Language": "pl-PL,pl;q=0.9,en;q=0.8",
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"X-Forwarded-For": "83.0.0.0",
		"CF-IPCountry":    "PL",
	}

	// rateLimitCodes are the statuses marketplaces answer when throttling
	rateLimitCodes = []int{http.StatusTooManyRequests, 430}
)

// NewHTTPClient builds the persistent client owned by a single scraper.
// Redirects are followed up to a fixed depth.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Fetch sends a GET request with the given header set, converts the response
// body to UTF-8 (if needed), and returns it as an io.Reader. Non-2xx answers
// are returned as typed errors; throttling answers become rate limit errors.
func Fetch(ctx context.Context, client *http.Client, source, url string, headers map[string]string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, scrapeerrors.NewValidation(source, fmt.Sprintf("failed to create request: %v", err))
	}

	for k, v := range headers {
		// net/http only decodes gzip transparently when it sets the header itself
		if strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, scrapeerrors.NewNetwork(source, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if slices.Contains(rateLimitCodes, resp.StatusCode) {
		retryAfter := resp.Header.Get("Retry-After")
		e := scrapeerrors.New(scrapeerrors.ErrorTypeRateLimit, source, fmt.Sprintf("rate limited; retry after %s", retryAfter), nil)
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	// Check for other error status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, scrapeerrors.NewStatus(source, url, resp.StatusCode)
	}

	// Read the entire response body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scrapeerrors.NewNetwork(source, "failed to read response body", err)
	}

	return toUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

// toUTF8 determines the encoding from Content-Type header and body content
func toUTF8(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)

	// If already UTF-8, return as is
	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(body), nil
	}

	// Convert to UTF-8 if necessary
	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return &buf, nil
}
