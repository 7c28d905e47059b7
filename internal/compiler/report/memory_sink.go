package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"artifact-compiler/internal/models"
)

// MemorySink keeps reports in process memory.
type MemorySink struct {
	mu      sync.RWMutex
	reports map[string]*models.FailureReport
}

func NewMemorySink() *MemorySink {
	return &MemorySink{reports: make(map[string]*models.FailureReport)}
}

func (s *MemorySink) Save(ctx context.Context, r *models.FailureReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[r.ID]; ok {
		return ErrDuplicateReport
	}
	s.reports[r.ID] = clone(r)
	return nil
}

func (s *MemorySink) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return clone(r), nil
}

// Resolve swaps in a resolved copy under the write lock.
func (s *MemorySink) Resolve(ctx context.Context, id, resolution string, at time.Time) (*models.FailureReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	out, err := resolved(r, resolution, at)
	if err != nil {
		return nil, err
	}
	s.reports[id] = out
	return clone(out), nil
}

func (s *MemorySink) List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.FailureReport
	for _, r := range s.reports {
		if filter.matches(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}
