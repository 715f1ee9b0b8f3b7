package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onco/onco/internal/domain/pain"
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

type Service struct {
	patients PatientRepository
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{patients: patients, logger: logger, now: time.Now}
}

func validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.MRN = strings.TrimSpace(p.MRN)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.Gender != nil {
		g := strings.ToLower(*p.Gender)
		if !validGenders[g] {
			return fmt.Errorf("gender must be one of male, female, other, unknown")
		}
		p.Gender = &g
	}
	if p.CYP2D6Phenotype != nil {
		ph, err := pain.ParsePhenotype(*p.CYP2D6Phenotype)
		if err != nil {
			return fmt.Errorf("cyp2d6_phenotype must be one of poor, intermediate, normal, ultrarapid")
		}
		norm := string(ph)
		p.CYP2D6Phenotype = &norm
	}
	if p.RenalClearance != nil && *p.RenalClearance < 0 {
		return fmt.Errorf("renal_clearance must not be negative")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	p.Active = true
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

func (s *Service) SearchPatients(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// PainContext lets the opioid calculator load covariates for a stored patient.
func (s *Service) PainContext(ctx context.Context, id uuid.UUID) (pain.PatientContext, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return pain.PatientContext{}, pain.ErrPatientNotFound
	}
	if err != nil {
		return pain.PatientContext{}, err
	}
	return p.PainContext(s.now()), nil
}
