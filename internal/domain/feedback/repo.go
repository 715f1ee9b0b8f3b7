package feedback

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("feedback not found")

type Filter struct {
	Status Status
	Type   Type
}

func (f Filter) matches(fb *Feedback) bool {
	return (f.Status == "" || fb.Status == f.Status) && (f.Type == "" || fb.Type == f.Type)
}

type Repository interface {
	Create(ctx context.Context, f *Feedback) error
	GetByID(ctx context.Context, id uuid.UUID) (*Feedback, error)
	Update(ctx context.Context, f *Feedback) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Feedback, int, error)
	Stats(ctx context.Context) (*Stats, error)
}
