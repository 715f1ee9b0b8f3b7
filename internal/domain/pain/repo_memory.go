package pain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryAssessmentRepo struct {
	mu          sync.RWMutex
	assessments map[uuid.UUID]*Assessment
}

// NewMemoryAssessmentRepo returns a process-local store used when no
// database is configured.
func NewMemoryAssessmentRepo() AssessmentRepository {
	return &memoryAssessmentRepo{assessments: make(map[uuid.UUID]*Assessment)}
}

func (r *memoryAssessmentRepo) Create(_ context.Context, a *Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.assessments[a.ID] = &cp
	return nil
}

func (r *memoryAssessmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assessments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryAssessmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	r.mu.RLock()
	var matched []*Assessment
	for _, a := range r.assessments {
		if a.PatientID == patientID {
			cp := *a
			matched = append(matched, &cp)
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
