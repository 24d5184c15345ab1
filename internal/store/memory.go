package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

var (
	// ErrNotFound is returned when no job is recorded under the given id.
	ErrNotFound = errors.New("no such job")
)

// JobRecord is the stored view of one generation job.
type JobRecord struct {
	ID         string             `json:"id"`
	State      string             `json:"state"`
	Request    weather.JobRequest `json:"request"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
	Frames     []weather.Frame    `json:"frames,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// MemoryStore is a concurrency-safe in-memory job history.
type MemoryStore struct {
	mu sync.RWMutex

	// key: job id; order keeps ids by start time, oldest first
	data  map[string]*JobRecord
	order []string

	// retention configuration
	maxHistory int           // max number of jobs kept
	maxAge     time.Duration // optional max age of jobs
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*JobRecord),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// Save inserts or replaces a job record and enforces retention.
func (s *MemoryStore) Save(rec JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, known := s.data[rec.ID]
	r := rec
	s.data[rec.ID] = &r
	if !known {
		s.order = append(s.order, rec.ID)
		sort.SliceStable(s.order, func(i, j int) bool {
			return s.startedAt(s.order[i]).Before(s.startedAt(s.order[j]))
		})
	}

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.order) > s.maxHistory {
		over := len(s.order) - s.maxHistory
		s.evict(s.order[:over])
		s.order = s.order[over:]
	}

	// Enforce retention by age; the newest job always stays.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.order)-1; i++ {
			if !s.startedAt(s.order[i]).Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.evict(s.order[:i])
			s.order = s.order[i:]
		}
	}
}

func (s *MemoryStore) startedAt(id string) time.Time {
	if r, ok := s.data[id]; ok {
		return r.StartedAt
	}
	return time.Time{}
}

func (s *MemoryStore) evict(ids []string) {
	for _, id := range ids {
		delete(s.data, id)
	}
}

// Get returns the job recorded under id.
func (s *MemoryStore) Get(id string) (JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return JobRecord{}, ErrNotFound
	}
	return *r, nil
}

// List returns all jobs, oldest first.
func (s *MemoryStore) List() []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]JobRecord, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.data[id])
	}
	return result
}
