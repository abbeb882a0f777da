package history

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ironsheep/carvision-mcp/internal/detection"
)

// DefaultLimit is the number of results a Store keeps unless told otherwise.
const DefaultLimit = 50

// Stats are running statistics over every result added since the last Clear.
type Stats struct {
	TotalAnalyses         int     `json:"totalAnalyses"`
	AverageAccuracy       float64 `json:"averageAccuracy"`
	AverageProcessingTime float64 `json:"averageProcessingTime"`
}

// PartCount is one entry of a part distribution.
type PartCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Store holds the detection session state.
type Store struct {
	mu         sync.RWMutex
	limit      int
	results    []detection.DetectionResult
	stats      Stats
	settings   Settings
	defaults   Settings
	processing int
}

// NewStore creates an empty Store keeping at most limit results and starting
// from the given settings.
func NewStore(limit int, settings Settings) (*Store, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: history limit must be at least 1, got %d", ErrInvalidSetting, limit)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		limit:    limit,
		results:  make([]detection.DetectionResult, 0, limit),
		settings: settings,
		defaults: settings,
	}, nil
}

// Limit returns the maximum number of retained results.
func (s *Store) Limit() int {
	return s.limit
}

// Add records a result as the newest entry and folds it into the running
// averages. The oldest result is dropped once the list is at its limit.
func (s *Store) Add(result detection.DetectionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.results
	if len(kept) >= s.limit {
		kept = kept[:s.limit-1]
	}
	next := make([]detection.DetectionResult, 0, s.limit)
	next = append(next, result)
	next = append(next, kept...)
	s.results = next

	n := float64(s.stats.TotalAnalyses)
	s.stats.TotalAnalyses++
	total := float64(s.stats.TotalAnalyses)
	s.stats.AverageAccuracy = (s.stats.AverageAccuracy*n + result.Accuracy) / total
	s.stats.AverageProcessingTime = (s.stats.AverageProcessingTime*n + float64(result.ProcessingTime)) / total
}

// Clear removes every result and resets the statistics. Settings are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make([]detection.DetectionResult, 0, s.limit)
	s.stats = Stats{}
}

// Len returns the number of retained results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Recent returns up to n results, newest first. n <= 0 returns all of them.
func (s *Store) Recent(n int) []detection.DetectionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.results) {
		n = len(s.results)
	}
	out := make([]detection.DetectionResult, n)
	copy(out, s.results[:n])
	return out
}

// Get looks up a retained result by ID.
func (s *Store) Get(id string) (detection.DetectionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.ID == id {
			return r, true
		}
	}
	return detection.DetectionResult{}, false
}

// Stats returns the current running statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// PartDistribution counts detected parts by name across retained results
// and returns the n most common, ties broken by name. n <= 0 returns all.
func (s *Store) PartDistribution(n int) []PartCount {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, r := range s.results {
		for _, p := range r.Parts {
			counts[p.Name]++
		}
	}
	s.mu.RUnlock()

	dist := make([]PartCount, 0, len(counts))
	for name, c := range counts {
		dist = append(dist, PartCount{Name: name, Count: c})
	}
	sort.Slice(dist, func(i, j int) bool {
		if dist[i].Count != dist[j].Count {
			return dist[i].Count > dist[j].Count
		}
		return dist[i].Name < dist[j].Name
	})
	if n > 0 && len(dist) > n {
		dist = dist[:n]
	}
	return dist
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings applies a partial update and returns the resulting
// settings. An invalid field rejects the whole patch.
func (s *Store) UpdateSettings(patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := patch.apply(s.settings)
	if err != nil {
		return s.settings, err
	}
	s.settings = next
	return next, nil
}

// ResetSettings restores the settings the Store was created with.
func (s *Store) ResetSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.defaults
	return s.settings
}

// BeginProcessing marks one more detection as in flight. Every call must be
// paired with EndProcessing.
func (s *Store) BeginProcessing() {
	s.mu.Lock()
	s.processing++
	s.mu.Unlock()
}

// EndProcessing marks one in-flight detection as finished.
func (s *Store) EndProcessing() {
	s.mu.Lock()
	if s.processing > 0 {
		s.processing--
	}
	s.mu.Unlock()
}

// Processing reports whether any detection is in flight.
func (s *Store) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing > 0
}
