// Package scraper defines core types shared across subsystems.
package scraper

import "time"

// ProviderType identifies the cloud vendor behind a scrape source.
type ProviderType string

// Known provider types. Unrecognized values are carried through untouched so
// new vendors can be configured without a code change.
const (
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
)

// Source is one configured scrape target. Identity is the name.
type Source struct {
	Name string       `json:"name"`
	URL  string       `json:"url"`
	Type ProviderType `json:"type"`
}

// RecordType classifies an extracted architecture record.
type RecordType string

// Record types produced by the extractors.
const (
	RecordTypePattern  RecordType = "pattern"
	RecordTypeSolution RecordType = "solution"
	RecordTypeGuide    RecordType = "guide"
	RecordTypeStrategy RecordType = "strategy"
)

// SourceRef embeds the originating source inside a record.
type SourceRef struct {
	Name string       `json:"name"`
	Type ProviderType `json:"type"`
	URL  string       `json:"url"`
}

// ArchitectureRecord is one extracted architecture description. Records are
// immutable once produced; the batch builder owns them until commit.
type ArchitectureRecord struct {
	Name        string            `json:"name"`
	Type        RecordType        `json:"type"`
	Source      SourceRef         `json:"source"`
	Description string            `json:"description,omitempty"`
	Link        string            `json:"link,omitempty"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
}

// MetadataScrapedAt is the metadata key stamped on every record with the
// extraction instant in RFC 3339 form.
const MetadataScrapedAt = "scraped_at"

// BatchMetadata summarizes one committed batch.
type BatchMetadata struct {
	Timestamp     string   `json:"timestamp"`
	TotalPatterns int      `json:"total_patterns"`
	Sources       []string `json:"sources"`
	BatchID       string   `json:"batch_id"`
}

// Batch is the immutable snapshot of all records produced by a single run.
// Invariant: Metadata.TotalPatterns == len(Architectures).
type Batch struct {
	BatchID       string               `json:"batch_id"`
	CreatedAt     time.Time            `json:"created_at"`
	Metadata      BatchMetadata        `json:"metadata"`
	Architectures []ArchitectureRecord `json:"architectures"`
}

// RunPhase is the lifecycle state of the single in-process scrape run.
type RunPhase string

// Run phases reported via the status endpoint.
const (
	RunPhaseIdle       RunPhase = "idle"
	RunPhaseInProgress RunPhase = "in_progress"
	RunPhaseCompleted  RunPhase = "completed"
	RunPhaseFailed     RunPhase = "failed"
)

// RunStatus is the transient process-wide job state. It lives in memory only
// and is lost on restart.
type RunStatus struct {
	Phase         RunPhase `json:"status"`
	Message       string   `json:"message"`
	BatchID       string   `json:"batch_id,omitempty"`
	TotalPatterns *int     `json:"total_patterns,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
}
