package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/narradar/narradar/internal/source"
)

const userAgent = "narradar/1.0 (+https://github.com/narradar/narradar)"

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 2 << 20

// WebAdapter fetches a web source's URL and extracts its readable text.
type WebAdapter struct {
	client *http.Client
}

// NewWebAdapter creates a WebAdapter with a bounded-timeout client.
func NewWebAdapter() *WebAdapter {
	return &WebAdapter{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *WebAdapter) Type() source.Type { return source.TypeWeb }

// Fetch downloads the source page and returns it as a single raw page.
func (a *WebAdapter) Fetch(ctx context.Context, src *source.Source) ([]RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", src.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)

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

	title, text := extractText(string(body))
	if title == "" {
		title = src.Name
	}
	return []RawPage{{
		Title:     title,
		Text:      text,
		URL:       src.URL,
		FetchedAt: time.Now().UTC(),
	}}, nil
}

// extractText pulls the title and visible text out of an HTML document,
// dropping script, style, and nav chrome.
func extractText(doc string) (title, text string) {
	tokenizer := html.NewTokenizer(strings.NewReader(doc))

	var b strings.Builder
	var inTitle bool
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return title, strings.TrimSpace(b.String())

		case html.StartTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "script", "style", "noscript", "nav", "footer", "header":
				skipDepth++
			case "title":
				inTitle = true
			}

		case html.EndTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "script", "style", "noscript", "nav", "footer", "header":
				if skipDepth > 0 {
					skipDepth--
				}
			case "title":
				inTitle = false
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			chunk := strings.TrimSpace(tokenizer.Token().Data)
			if chunk == "" {
				continue
			}
			if inTitle {
				if title == "" {
					title = chunk
				}
				continue
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(chunk)
		}
	}
}
