// Package memory contains in-memory store implementations for tests and
// store-less development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// BatchStore keeps committed batches in memory, preserving insertion order.
type BatchStore struct {
	mu      sync.RWMutex
	batches []scraper.Batch
}

// NewBatchStore constructs a BatchStore.
func NewBatchStore() *BatchStore {
	return &BatchStore{}
}

// InsertBatch appends a batch. Batch ids must be unique.
func (s *BatchStore) InsertBatch(_ context.Context, batch scraper.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.BatchID == batch.BatchID {
			return fmt.Errorf("batch %s already exists", batch.BatchID)
		}
	}
	s.batches = append(s.batches, batch)
	return nil
}

// ListBatches returns all batches, newest first; creation-time ties keep the
// later-inserted batch first.
func (s *BatchStore) ListBatches(_ context.Context) ([]scraper.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.Batch, len(s.batches))
	copy(out, s.batches)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	// Stable sort keeps insertion order within equal timestamps; reverse those
	// runs so the later insert wins, matching the Postgres ordering.
	reverseEqualRuns(out)
	return out, nil
}

// GetLatest returns the most recently created batch.
func (s *BatchStore) GetLatest(ctx context.Context) (scraper.Batch, error) {
	batches, err := s.ListBatches(ctx)
	if err != nil {
		return scraper.Batch{}, err
	}
	if len(batches) == 0 {
		return scraper.Batch{}, scraper.ErrBatchNotFound
	}
	return batches[0], nil
}

// GetByID returns the batch with the given batch id.
func (s *BatchStore) GetByID(_ context.Context, batchID string) (scraper.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		if b.BatchID == batchID {
			return b, nil
		}
	}
	return scraper.Batch{}, scraper.ErrBatchNotFound
}

// GetPatterns returns only the record slice of the given batch.
func (s *BatchStore) GetPatterns(ctx context.Context, batchID string) ([]scraper.ArchitectureRecord, error) {
	b, err := s.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]scraper.ArchitectureRecord, len(b.Architectures))
	copy(out, b.Architectures)
	return out, nil
}

// Ping always succeeds.
func (s *BatchStore) Ping(_ context.Context) error {
	return nil
}

func reverseEqualRuns(batches []scraper.Batch) {
	i := 0
	for i < len(batches) {
		j := i + 1
		for j < len(batches) && batches[j].CreatedAt.Equal(batches[i].CreatedAt) {
			j++
		}
		for l, r := i, j-1; l < r; l, r = l+1, r-1 {
			batches[l], batches[r] = batches[r], batches[l]
		}
		i = j
	}
}
