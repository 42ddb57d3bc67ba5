package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/narradar/narradar/internal/source"
)

// APIAdapter fetches a JSON feed endpoint. The endpoint is expected to
// return an array of items, either bare or under an "items" key.
type APIAdapter struct {
	client *http.Client
}

// NewAPIAdapter creates an APIAdapter.
func NewAPIAdapter() *APIAdapter {
	return &APIAdapter{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *APIAdapter) Type() source.Type { return source.TypeAPI }

type apiItem struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

func (a *APIAdapter) Fetch(ctx context.Context, src *source.Source) ([]RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", src.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", src.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.URL, err)
	}

	var items []apiItem
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapped struct {
			Items []apiItem `json:"items"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding feed %s: %w", src.URL, err)
		}
		items = wrapped.Items
	}

	now := time.Now().UTC()
	pages := make([]RawPage, 0, len(items))
	for _, item := range items {
		text := item.Text
		if text == "" {
			text = item.Content
		}
		if text == "" {
			continue
		}
		pageURL := item.URL
		if pageURL == "" {
			pageURL = src.URL
		}
		pages = append(pages, RawPage{
			Title:     item.Title,
			Text:      text,
			URL:       pageURL,
			FetchedAt: now,
		})
	}
	return pages, nil
}
