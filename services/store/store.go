package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/logger"
	scrapeerrors "github.com/Wonsky1/topn-worker/pkg/errors"
)

const (
	source       = "store"
	snippetLimit = 200
)

// Task is a monitoring task registered by a user
type Task struct {
	ID  any    `json:"id,omitempty"`
	URL string `json:"url"`
}

// StoredItem is an item already persisted for a source URL
type StoredItem struct {
	ItemURL string `json:"item_url"`
}

// ItemData is the payload persisted for a newly found item
type ItemData struct {
	ItemURL         string  `json:"item_url"`
	Title           string  `json:"title"`
	Price           string  `json:"price"`
	Location        string  `json:"location"`
	CreatedAt       *string `json:"created_at"`
	CreatedAtPretty string  `json:"created_at_pretty"`
	ImageURL        string  `json:"image_url"`
	Description     string  `json:"description"`
	SourceURL       string  `json:"source_url"`
	Source          string  `json:"source"`
	FirstSeen       string  `json:"first_seen"`
}

type tasksResponse struct {
	Tasks []Task `json:"tasks"`
}

type itemsResponse struct {
	Items []StoredItem `json:"items"`
}

// Client talks to the task and item API
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a store client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.ForStore(),
	}
}

// GetAllTasks returns every monitoring task
func (c *Client) GetAllTasks(ctx context.Context) ([]Task, error) {
	var resp tasksResponse
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &resp); err != nil {
		return nil, err
	}
	c.log.Debug().Int("tasks", len(resp.Tasks)).Msg("Fetched tasks")
	return resp.Tasks, nil
}

// GetItemsBySourceURL returns up to limit items already stored for sourceURL
func (c *Client) GetItemsBySourceURL(ctx context.Context, sourceURL string, limit int) ([]StoredItem, error) {
	query := url.Values{}
	query.Set("source_url", sourceURL)
	query.Set("limit", strconv.Itoa(limit))

	var resp itemsResponse
	if err := c.do(ctx, http.MethodGet, "/items/by-source?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CreateItem persists one item
func (c *Client) CreateItem(ctx context.Context, item ItemData) error {
	return c.do(ctx, http.MethodPost, "/items", item, nil)
}

// Close drops idle connections
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return scrapeerrors.NewStore(source, "failed to encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return scrapeerrors.NewStore(source, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return scrapeerrors.NewStore(source, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return scrapeerrors.NewStore(source, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := scrapeerrors.NewStore(source, fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode,
			helpers.Truncate(strings.TrimSpace(string(data)), snippetLimit)), nil)
		e.StatusCode = resp.StatusCode
		return e
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return scrapeerrors.NewStore(source, "failed to decode response", err)
	}
	return nil
}
