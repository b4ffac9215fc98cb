package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// CompletionClient is the language-model collaborator: given a prompt it
// returns a raw reply expected to be a JSON object.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// maxPageTextChars bounds the page text submitted to the model.
const maxPageTextChars = 12000

const promptTemplate = `You are given the visible text of a web page from %s (%s).
If the page describes a cloud architecture pattern, solution, guide, or strategy,
extract it as a JSON object with these fields:
  title, description, provider, scraped_from_url, timestamp, tags, resources, relationships
Omit any field you cannot infer. tags, resources and relationships are arrays of strings.
If the page is NOT a cloud architecture description, reply with exactly {"no_match": true}.

Page URL: %s

Page text:
%s`

// AIAssisted extracts one record per candidate page by delegating structuring
// to a language model. Candidate pages are discovered from the rendered
// source page by following anchors whose target mentions "architecture".
type AIAssisted struct {
	client   CompletionClient
	fetcher  PageFetcher
	clock    scraper.Clock
	logger   *zap.Logger
	maxPages int
}

// NewAIAssisted creates an AIAssisted extractor.
func NewAIAssisted(client CompletionClient, fetcher PageFetcher, clock scraper.Clock, maxPages int, logger *zap.Logger) *AIAssisted {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	return &AIAssisted{
		client:   client,
		fetcher:  fetcher,
		clock:    clock,
		logger:   logger,
		maxPages: maxPages,
	}
}

// Extract discovers candidate pages from the rendered source page and asks
// the model to structure each one. Unparseable or no-match replies are logged
// and skipped; the remaining pages are still attempted.
func (a *AIAssisted) Extract(ctx context.Context, html string, source scraper.Source) ([]scraper.ArchitectureRecord, error) {
	links, err := DiscoverLinks(html, source.URL, a.maxPages)
	if err != nil {
		return nil, &scraper.SourceScrapeError{Source: source.Name, Err: err}
	}
	if len(links) == 0 {
		a.logger.Warn("no architecture links found", zap.String("source", source.Name))
		return nil, nil
	}

	var records []scraper.ArchitectureRecord
	for _, link := range links {
		rec, err := a.extractPage(ctx, link, source)
		if err != nil {
			a.logger.Warn("page extraction skipped",
				zap.String("source", source.Name),
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *AIAssisted) extractPage(ctx context.Context, pageURL string, source scraper.Source) (scraper.ArchitectureRecord, error) {
	body, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return scraper.ArchitectureRecord{}, err
	}

	text, err := cleanPageText(body)
	if err != nil {
		return scraper.ArchitectureRecord{}, err
	}

	prompt := fmt.Sprintf(promptTemplate, source.Name, source.Type, pageURL, text)
	reply, err := a.client.Complete(ctx, prompt)
	if err != nil {
		return scraper.ArchitectureRecord{}, err
	}
	return a.parseReply(reply, pageURL, source)
}

type aiReply struct {
	NoMatch        bool     `json:"no_match"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Provider       string   `json:"provider"`
	ScrapedFromURL string   `json:"scraped_from_url"`
	Timestamp      string   `json:"timestamp"`
	Tags           []string `json:"tags"`
	Resources      []string `json:"resources"`
	Relationships  []string `json:"relationships"`
}

func (a *AIAssisted) parseReply(reply string, pageURL string, source scraper.Source) (scraper.ArchitectureRecord, error) {
	var parsed aiReply
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return scraper.ArchitectureRecord{}, fmt.Errorf("unparseable model reply: %w", err)
	}
	if parsed.NoMatch {
		return scraper.ArchitectureRecord{}, scraper.ErrNoMatch
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return scraper.ArchitectureRecord{}, fmt.Errorf("model reply missing title")
	}

	link := parsed.ScrapedFromURL
	if link == "" {
		link = pageURL
	}
	tags := parsed.Tags
	if tags == nil {
		tags = []string{}
	}

	metadata := map[string]string{
		scraper.MetadataScrapedAt: a.clock.Now().Format(time.RFC3339),
	}
	if parsed.Provider != "" {
		metadata["provider"] = parsed.Provider
	}
	if parsed.Timestamp != "" {
		metadata["page_timestamp"] = parsed.Timestamp
	}
	if len(parsed.Resources) > 0 {
		metadata["resources"] = strings.Join(parsed.Resources, ", ")
	}
	if len(parsed.Relationships) > 0 {
		metadata["relationships"] = strings.Join(parsed.Relationships, ", ")
	}

	return scraper.ArchitectureRecord{
		Name:        strings.TrimSpace(parsed.Title),
		Type:        scraper.RecordTypePattern,
		Source:      scraper.SourceRef{Name: source.Name, Type: source.Type, URL: source.URL},
		Description: strings.TrimSpace(parsed.Description),
		Link:        link,
		Tags:        tags,
		Metadata:    metadata,
	}, nil
}

// cleanPageText strips non-content elements and serializes the visible text.
func cleanPageText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, nav, footer, header, aside").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > maxPageTextChars {
		text = text[:maxPageTextChars]
	}
	return text, nil
}
