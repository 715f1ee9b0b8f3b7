package pain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("pain assessment not found")

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
}

// PatientLookup loads evaluator covariates for a stored patient.
type PatientLookup interface {
	PainContext(ctx context.Context, patientID uuid.UUID) (PatientContext, error)
}
