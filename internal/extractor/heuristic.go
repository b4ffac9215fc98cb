// Package extractor turns rendered pages into architecture records. Two
// interchangeable strategies exist: a selector-based heuristic over the DOM
// and an AI-assisted strategy that delegates structuring to a language model.
package extractor

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// Structural selectors tried against the rendered DOM, in order. Matches are
// unioned across selectors; an element matching several selectors is kept
// once per match, which is accepted noise rather than deduplicated.
var (
	awsSelectors = []string{
		`div[class*="aws-card"]`,
		`div[class*="card"]`,
		`div[class*="pattern"]`,
		`div[class*="solution"]`,
		`article`,
		`div[class*="architecture"]`,
	}
	azureSelectors = []string{
		`div[class*="card"]`,
		`div[class*="article"]`,
		`div[class*="pattern"]`,
		`div[class*="solution"]`,
		`article`,
		`div[class*="architecture"]`,
	}
)

const headingSelector = "h1, h2, h3, h4, h5"

// Heuristic extracts records by applying structural selectors to the DOM.
type Heuristic struct {
	logger *zap.Logger
	clock  scraper.Clock
}

// NewHeuristic creates a Heuristic extractor.
func NewHeuristic(clock scraper.Clock, logger *zap.Logger) *Heuristic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristic{logger: logger, clock: clock}
}

// Extract parses the rendered HTML and returns zero or more candidate
// records. A page with no matching containers yields an empty slice and a
// warning log, never an error.
func (h *Heuristic) Extract(_ context.Context, html string, source scraper.Source) ([]scraper.ArchitectureRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &scraper.SourceScrapeError{Source: source.Name, Err: err}
	}

	containers := h.selectContainers(doc, source)
	if len(containers) == 0 {
		h.logger.Warn("no patterns found",
			zap.String("source", source.Name),
			zap.String("provider", string(source.Type)),
		)
		return nil, nil
	}

	scrapedAt := h.clock.Now().Format(time.RFC3339)
	records := make([]scraper.ArchitectureRecord, 0, len(containers))
	for _, container := range containers {
		rec, ok := h.buildRecord(container, source, scrapedAt)
		if !ok {
			continue
		}
		records = append(records, rec)
		h.logger.Debug("extracted record",
			zap.String("source", source.Name),
			zap.String("name", rec.Name),
			zap.String("type", string(rec.Type)),
		)
	}
	return records, nil
}

func (h *Heuristic) selectContainers(doc *goquery.Document, source scraper.Source) []*goquery.Selection {
	selectors := azureSelectors
	if source.Type == scraper.ProviderAWS {
		selectors = awsSelectors
	}

	var containers []*goquery.Selection
	for _, selector := range selectors {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			continue
		}
		matches.Each(func(_ int, sel *goquery.Selection) {
			containers = append(containers, sel)
		})
		h.logger.Debug("selector matched",
			zap.String("selector", selector),
			zap.Int("count", matches.Length()),
		)
	}
	return containers
}

// buildRecord assembles a record from one matched container. Containers
// without a heading are discarded.
func (h *Heuristic) buildRecord(sel *goquery.Selection, source scraper.Source, scrapedAt string) (scraper.ArchitectureRecord, bool) {
	heading := sel.Find(headingSelector).First()
	if heading.Length() == 0 {
		return scraper.ArchitectureRecord{}, false
	}

	rec := scraper.ArchitectureRecord{
		Name: strings.TrimSpace(heading.Text()),
		Type: classify(sel),
		Source: scraper.SourceRef{
			Name: source.Name,
			Type: source.Type,
			URL:  source.URL,
		},
		Tags: []string{},
		Metadata: map[string]string{
			scraper.MetadataScrapedAt: scrapedAt,
		},
	}

	if desc := sel.Find("p").First(); desc.Length() > 0 {
		rec.Description = strings.TrimSpace(desc.Text())
	}
	if link := sel.Find("a").First(); link.Length() > 0 {
		rec.Link, _ = link.Attr("href")
	}
	return rec, true
}

// classify inspects the serialized container. Checks run in a fixed order and
// each match overwrites the previous one, so the last matching keyword wins;
// pattern is the fallback.
func classify(sel *goquery.Selection) scraper.RecordType {
	serialized, err := goquery.OuterHtml(sel)
	if err != nil {
		return scraper.RecordTypePattern
	}
	serialized = strings.ToLower(serialized)

	recordType := scraper.RecordTypePattern
	if strings.Contains(serialized, "solution") {
		recordType = scraper.RecordTypeSolution
	}
	if strings.Contains(serialized, "guide") {
		recordType = scraper.RecordTypeGuide
	}
	if strings.Contains(serialized, "strategy") {
		recordType = scraper.RecordTypeStrategy
	}
	return recordType
}
