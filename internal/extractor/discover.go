package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// DiscoverLinks collects anchor targets from the rendered source page whose
// href contains "architecture". Relative URLs are resolved against the source
// URL; duplicates are removed preserving first-seen order.
func DiscoverLinks(html string, baseURL string, limit int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse source page: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !strings.Contains(strings.ToLower(href), "architecture") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref).String()
		if _, ok := seen[resolved]; ok {
			return true
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
		return limit <= 0 || len(links) < limit
	})
	return links, nil
}

// PageFetcher retrieves candidate pages over plain HTTP.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// CollyFetcher implements PageFetcher using the Colly collector.
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
	base      *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	return &CollyFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		base:      c,
	}
}

// Fetch executes a single HTTP GET using Colly and returns the body.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	collector := f.base.Clone()
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}
	collector.SetRequestTimeout(f.timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		if status >= http.StatusBadRequest {
			return "", fmt.Errorf("fetch %s: status %d", rawURL, status)
		}
		return string(body), nil
	}
}
