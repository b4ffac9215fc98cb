// Package batch accumulates extracted records into immutable batches.
package batch

import (
	"time"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// batchIDLayout derives the batch id from the commit timestamp.
const batchIDLayout = "20060102_150405"

// Builder collects records across all sources scraped in one run. Exactly one
// builder exists per run; it is not safe for concurrent use.
type Builder struct {
	sourceNames []string
	records     []scraper.ArchitectureRecord
}

// NewBuilder starts a batch for the given run sources.
func NewBuilder(sources []scraper.Source) *Builder {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return &Builder{
		sourceNames: names,
		records:     []scraper.ArchitectureRecord{},
	}
}

// Add appends records to the in-progress batch.
func (b *Builder) Add(records ...scraper.ArchitectureRecord) {
	b.records = append(b.records, records...)
}

// Len reports the number of accumulated records.
func (b *Builder) Len() int {
	return len(b.records)
}

// Finalize stamps the commit time and seals the batch. The batch id is
// derived from the commit timestamp; total patterns always matches the
// record count.
func (b *Builder) Finalize(now time.Time) scraper.Batch {
	batchID := now.Format(batchIDLayout)
	return scraper.Batch{
		BatchID:   batchID,
		CreatedAt: now,
		Metadata: scraper.BatchMetadata{
			Timestamp:     now.Format(time.RFC3339),
			TotalPatterns: len(b.records),
			Sources:       b.sourceNames,
			BatchID:       batchID,
		},
		Architectures: b.records,
	}
}
