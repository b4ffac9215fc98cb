// Package controller orchestrates scrape runs: source resolution, rendering,
// extraction, batch commit, and run status tracking.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/batch"
	"github.com/lioriz/arch-scraper/internal/metrics"
	"github.com/lioriz/arch-scraper/internal/policy/politeness"
	"github.com/lioriz/arch-scraper/internal/scraper"
	"github.com/lioriz/arch-scraper/internal/sources"
)

// Config controls run side effects.
type Config struct {
	// Topic is the Pub/Sub topic for batch completion events. Empty disables
	// publishing.
	Topic string
	// ExportPrefix is the blob path prefix for batch JSON exports.
	ExportPrefix string
}

// JobController runs at most one scrape run per process. Start requests
// arriving while a run is active are rejected, never queued.
type JobController struct {
	registry  *sources.Registry
	renderer  scraper.Renderer
	extractor scraper.Extractor
	store     scraper.BatchStore
	limiter   *politeness.Limiter
	publisher scraper.Publisher
	exporter  scraper.BlobStore
	clock     scraper.Clock
	cfg       Config
	logger    *zap.Logger

	status statusCell
}

// New constructs a JobController. Publisher and exporter may be nil; the
// corresponding side effects are skipped.
func New(
	registry *sources.Registry,
	renderer scraper.Renderer,
	extractor scraper.Extractor,
	store scraper.BatchStore,
	limiter *politeness.Limiter,
	publisher scraper.Publisher,
	exporter scraper.BlobStore,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
) *JobController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobController{
		registry:  registry,
		renderer:  renderer,
		extractor: extractor,
		store:     store,
		limiter:   limiter,
		publisher: publisher,
		exporter:  exporter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Status returns a copy of the current run state.
func (c *JobController) Status() scraper.RunStatus {
	return c.status.Get()
}

// StartRun begins a scrape run on a background goroutine. It returns
// scraper.ErrRunInProgress when another run is active. The guard check and
// transition happen as one atomic step relative to the run's completion
// handler, so concurrent start requests cannot both slip through.
func (c *JobController) StartRun(ctx context.Context, sourceNames []string) error {
	if !c.status.BeginRun("Scraping is currently running") {
		return scraper.ErrRunInProgress
	}
	go c.run(context.WithoutCancel(ctx), sourceNames)
	return nil
}

func (c *JobController) run(ctx context.Context, sourceNames []string) {
	start := c.clock.Now()
	b, err := c.execute(ctx, sourceNames)
	duration := c.clock.Now().Sub(start)
	if err != nil {
		c.logger.Error("scrape run failed", zap.Error(err))
		metrics.ObserveRun(string(scraper.RunPhaseFailed), duration)
		c.status.Finish(scraper.RunStatus{
			Phase:   scraper.RunPhaseFailed,
			Message: fmt.Sprintf("Scraping failed: %v", err),
		})
		return
	}

	total := b.Metadata.TotalPatterns
	c.logger.Info("scrape run completed",
		zap.String("batch_id", b.BatchID),
		zap.Int("total_patterns", total),
		zap.Duration("duration", duration),
	)
	metrics.ObserveRun(string(scraper.RunPhaseCompleted), duration)
	c.status.Finish(scraper.RunStatus{
		Phase:         scraper.RunPhaseCompleted,
		Message:       "Scraping completed",
		BatchID:       b.BatchID,
		TotalPatterns: &total,
		Timestamp:     b.Metadata.Timestamp,
	})

	// Export and notification are best-effort: failures are logged but the
	// run already committed.
	c.exportBatch(ctx, b)
	c.publishBatch(ctx, b)
}

// execute performs the scrape itself and commits the batch. A failure before
// any source is processed, or at commit, fails the whole run; per-source
// failures are logged and the remaining sources still get attempted.
func (c *JobController) execute(ctx context.Context, sourceNames []string) (scraper.Batch, error) {
	configured, err := c.registry.Load()
	if err != nil {
		return scraper.Batch{}, fmt.Errorf("load sources: %w", err)
	}
	selected := sources.Filter(configured, sourceNames)
	c.logger.Info("starting scrape run",
		zap.Int("sources", len(selected)),
		zap.Strings("requested", sourceNames),
	)

	session, err := c.renderer.NewSession(ctx)
	if err != nil {
		return scraper.Batch{}, fmt.Errorf("open render session: %w", err)
	}
	defer session.Close()

	builder := batch.NewBuilder(selected)
	for _, source := range selected {
		if err := c.scrapeSource(ctx, session, source, builder); err != nil {
			metrics.ObserveSourceFailure(source.Name)
			c.logger.Error("source scrape failed",
				zap.String("source", source.Name),
				zap.Error(err),
			)
		}
	}

	finished := builder.Finalize(c.clock.Now())
	if err := c.store.InsertBatch(ctx, finished); err != nil {
		return scraper.Batch{}, fmt.Errorf("commit batch: %w", err)
	}
	return finished, nil
}

func (c *JobController) scrapeSource(
	ctx context.Context,
	session scraper.RenderSession,
	source scraper.Source,
	builder *batch.Builder,
) error {
	c.logger.Info("scraping source",
		zap.String("source", source.Name),
		zap.String("url", source.URL),
	)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, source.URL); err != nil {
			return &scraper.SourceScrapeError{Source: source.Name, Err: err}
		}
	}

	html, err := session.Render(ctx, source.URL)
	if err != nil {
		return &scraper.SourceScrapeError{Source: source.Name, Err: err}
	}

	records, err := c.extractor.Extract(ctx, html, source)
	if err != nil {
		return &scraper.SourceScrapeError{Source: source.Name, Err: err}
	}

	builder.Add(records...)
	metrics.ObserveRecords(source.Name, len(records))
	c.logger.Info("source scraped",
		zap.String("source", source.Name),
		zap.Int("records", len(records)),
	)
	return nil
}

func (c *JobController) exportBatch(ctx context.Context, b scraper.Batch) {
	if c.exporter == nil {
		return
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		c.logger.Warn("marshal batch export failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("export_%s.json", b.BatchID)
	if prefix := strings.Trim(c.cfg.ExportPrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := c.exporter.PutObject(ctx, path, "application/json", data)
	if err != nil {
		c.logger.Warn("batch export failed", zap.String("batch_id", b.BatchID), zap.Error(err))
		return
	}
	c.logger.Info("batch exported", zap.String("batch_id", b.BatchID), zap.String("uri", uri))
}

func (c *JobController) publishBatch(ctx context.Context, b scraper.Batch) {
	if c.publisher == nil || c.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"batch_id":       b.BatchID,
		"total_patterns": b.Metadata.TotalPatterns,
		"timestamp":      b.Metadata.Timestamp,
		"sources":        b.Metadata.Sources,
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, payload); err != nil {
		c.logger.Warn("batch completion publish failed",
			zap.String("batch_id", b.BatchID),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("batch completion published",
		zap.String("batch_id", b.BatchID),
		zap.String("topic", c.cfg.Topic),
	)
}
