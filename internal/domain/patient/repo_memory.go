package patient

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryPatientRepo struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

func NewMemoryPatientRepo() PatientRepository {
	return &memoryPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (r *memoryPatientRepo) mrnTaken(mrn string, except uuid.UUID) bool {
	for id, p := range r.patients {
		if id != except && strings.EqualFold(p.MRN, mrn) {
			return true
		}
	}
	return false
}

func (r *memoryPatientRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mrnTaken(p.MRN, uuid.Nil) {
		return ErrDuplicateMRN
	}
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *memoryPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryPatientRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if strings.EqualFold(p.MRN, mrn) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryPatientRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	if r.mrnTaken(p.MRN, p.ID) {
		return ErrDuplicateMRN
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *memoryPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return ErrNotFound
	}
	delete(r.patients, id)
	return nil
}

func (r *memoryPatientRepo) Search(_ context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	var matched []*Patient
	for _, p := range r.patients {
		if params.matches(p) {
			cp := *p
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID.String() < b.ID.String()
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

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (sp SearchParams) matches(p *Patient) bool {
	if sp.Query != "" && !containsFold(p.FirstName, sp.Query) && !containsFold(p.LastName, sp.Query) && !containsFold(p.MRN, sp.Query) {
		return false
	}
	if sp.Name != "" && !containsFold(p.FirstName, sp.Name) && !containsFold(p.LastName, sp.Name) {
		return false
	}
	if sp.Identifier != "" && !strings.EqualFold(p.MRN, identifierValue(sp.Identifier)) {
		return false
	}
	if sp.Gender != "" && (p.Gender == nil || !strings.EqualFold(*p.Gender, sp.Gender)) {
		return false
	}
	if sp.BirthDate != nil && (p.BirthDate == nil || !sp.BirthDate.Match(*p.BirthDate)) {
		return false
	}
	return true
}
