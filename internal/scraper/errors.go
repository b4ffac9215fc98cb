package scraper

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems.
var (
	// ErrRunInProgress is returned when a scrape start request arrives while
	// another run is active. The request is rejected, never queued.
	ErrRunInProgress = errors.New("scrape run already in progress")

	// ErrBatchNotFound is returned by stores when no batch matches a query.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrNoMatch is returned by the AI extractor when the model signals that a
	// page does not describe a cloud architecture.
	ErrNoMatch = errors.New("page is not an architecture description")
)

// SourceScrapeError marks a failure scoped to a single source. The run logs
// it and proceeds to the next source.
type SourceScrapeError struct {
	Source string
	Err    error
}

func (e *SourceScrapeError) Error() string {
	return fmt.Sprintf("scrape source %s: %v", e.Source, e.Err)
}

func (e *SourceScrapeError) Unwrap() error {
	return e.Err
}
