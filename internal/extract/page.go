// Package extract fetches research source pages and pulls readable text
// out of them for analysis snippets.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxBodyBytes      = 2 << 20 // 2 MiB per page is enough for text extraction
	defaultMaxContent = 4000    // runes kept per source snippet
)

// Page is the readable content of a fetched source.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Extractor fetches pages and strips them down to title plus visible text.
type Extractor struct {
	client     *http.Client
	maxContent int
}

// NewExtractor creates a page extractor with the given timeout.
func NewExtractor(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{
		client:     &http.Client{Timeout: timeout},
		maxContent: defaultMaxContent,
	}
}

// Fetch downloads url and extracts its title and body text.
func (e *Extractor) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "market-research-bot/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		return nil, fmt.Errorf("fetch %s: unsupported content type %q", url, contentType)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	page, err := e.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	page.URL = url
	return page, nil
}

// Parse extracts title and visible text from an HTML document.
func (e *Extractor) Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var parts []string
	doc.Find("p, h1, h2, h3, li, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	content := strings.Join(parts, "\n")
	if content == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}
	content = collapseWhitespace(content)

	if runes := []rune(content); len(runes) > e.maxContent {
		content = string(runes[:e.maxContent])
	}

	return &Page{Title: title, Content: content}, nil
}

// collapseWhitespace squeezes runs of blank lines and spaces.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
