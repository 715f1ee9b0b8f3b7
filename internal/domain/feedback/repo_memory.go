package feedback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Feedback
}

func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[uuid.UUID]*Feedback)}
}

func clone(f *Feedback) *Feedback {
	cp := *f
	cp.Labels = append([]string(nil), f.Labels...)
	return &cp
}

func (r *memoryRepo) Create(_ context.Context, f *Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.ID = uuid.New()
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	r.items[f.ID] = clone(f)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(f), nil
}

func (r *memoryRepo) Update(_ context.Context, f *Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[f.ID]
	if !ok {
		return ErrNotFound
	}
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	r.items[f.ID] = clone(f)
	return nil
}

func (r *memoryRepo) List(_ context.Context, filter Filter, limit, offset int) ([]*Feedback, int, error) {
	r.mu.RLock()
	var matched []*Feedback
	for _, f := range r.items {
		if filter.matches(f) {
			matched = append(matched, clone(f))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryRepo) Stats(_ context.Context) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := newStats()
	var ratingSum, rated int
	for _, f := range r.items {
		s.Total++
		s.ByStatus[f.Status]++
		s.ByType[f.Type]++
		s.ByPriority[f.Priority]++
		s.ByCategory[f.Category]++
		if f.HasIssue() {
			s.WithIssue++
		}
		if f.Rating != nil {
			ratingSum += *f.Rating
			rated++
		}
	}
	if rated > 0 {
		avg := float64(ratingSum) / float64(rated)
		s.AverageRating = &avg
	}
	return s, nil
}
