// Package sources loads and filters the scrape target registry.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// ErrMalformed indicates the sources artifact exists but cannot be parsed.
var ErrMalformed = errors.New("malformed sources file")

// Registry reads scrape targets from a JSON artifact on disk.
type Registry struct {
	path   string
	logger *zap.Logger
}

// NewRegistry creates a Registry backed by the given file path.
func NewRegistry(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{path: path, logger: logger}
}

// Load reads the configured sources. When the artifact is absent, the
// built-in default pair is written back to disk and returned.
func (r *Registry) Load() ([]scraper.Source, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("sources file not found, creating defaults", zap.String("path", r.path))
			defaults := DefaultSources()
			if writeErr := r.write(defaults); writeErr != nil {
				return nil, writeErr
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var out []scraper.Source
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, r.path, err)
	}
	return out, nil
}

func (r *Registry) write(srcs []scraper.Source) error {
	data, err := json.MarshalIndent(srcs, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write sources file: %w", err)
	}
	return nil
}

// DefaultSources returns the built-in AWS and Azure architecture centers.
func DefaultSources() []scraper.Source {
	return []scraper.Source{
		{
			Name: "AWS Architecture Center",
			URL:  "https://aws.amazon.com/architecture/",
			Type: scraper.ProviderAWS,
		},
		{
			Name: "Azure Architecture Center",
			URL:  "https://learn.microsoft.com/en-us/azure/architecture/",
			Type: scraper.ProviderAzure,
		},
	}
}

// Filter keeps only sources whose name appears in names, preserving the
// original order. A nil or empty names slice keeps everything.
func Filter(srcs []scraper.Source, names []string) []scraper.Source {
	if len(names) == 0 {
		return srcs
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	out := make([]scraper.Source, 0, len(srcs))
	for _, s := range srcs {
		if _, ok := wanted[s.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}
