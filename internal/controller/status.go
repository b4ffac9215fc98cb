package controller

import (
	"sync"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// statusCell is the single shared run-status cell. The in-progress guard and
// the terminal transition go through the same mutex, which is what makes the
// at-most-one-run guarantee hold against concurrent start requests.
type statusCell struct {
	mu      sync.Mutex
	current scraper.RunStatus
}

// Get returns a copy of the current status. The zero value reads as idle.
func (c *statusCell) Get() scraper.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.status()
	if out.TotalPatterns != nil {
		total := *out.TotalPatterns
		out.TotalPatterns = &total
	}
	return out
}

// BeginRun transitions to in-progress unless a run is already active.
// It reports whether the transition happened.
func (c *statusCell) BeginRun(message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status().Phase == scraper.RunPhaseInProgress {
		return false
	}
	c.current = scraper.RunStatus{
		Phase:   scraper.RunPhaseInProgress,
		Message: message,
	}
	return true
}

// Finish records the terminal state of the run.
func (c *statusCell) Finish(status scraper.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = status
}

func (c *statusCell) status() scraper.RunStatus {
	if c.current.Phase == "" {
		return scraper.RunStatus{
			Phase:   scraper.RunPhaseIdle,
			Message: "No scraping has been performed yet",
		}
	}
	return c.current
}
