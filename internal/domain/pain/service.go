package pain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/onco/onco/internal/platform/auth"
)

const (
	MaxMedications     = 50
	maxSuggestions     = 20
	cacheCleanupFactor = 2
)

// ErrPatientNotFound is returned by PatientLookup implementations for an
// unknown patient.
var ErrPatientNotFound = errors.New("patient not found")

// ErrInvalidInput wraps every request validation failure.
var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	assessments AssessmentRepository
	patients    PatientLookup
	cache       *cache.Cache
	logger      zerolog.Logger
}

// NewService wires the calculator to its stores. patients may be nil, in
// which case patient_id lookups are rejected. A zero cacheTTL disables the
// safety-check cache.
func NewService(assessments AssessmentRepository, patients PatientLookup, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	s := &Service{
		assessments: assessments,
		patients:    patients,
		logger:      logger.With().Str("component", "pain").Logger(),
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, cacheCleanupFactor*cacheTTL)
	}
	return s
}

func validateEntries(entries []MedicationEntry) error {
	if len(entries) > MaxMedications {
		return fmt.Errorf("%w: at most %d medications are allowed, got %d", ErrInvalidInput, MaxMedications, len(entries))
	}
	return nil
}

func (s *Service) CalculateMME(entries []MedicationEntry) (MMEResult, error) {
	if err := validateEntries(entries); err != nil {
		return MMEResult{}, err
	}
	return CalculateMME(entries), nil
}

// SafetyCheckRequest carries either explicit covariates, a stored patient,
// or both. Explicit covariates override the stored ones field by field.
type SafetyCheckRequest struct {
	Medications []MedicationEntry
	Patient     *PatientContext
	PatientID   *uuid.UUID
}

func (s *Service) SafetyCheck(ctx context.Context, req SafetyCheckRequest) (CheckResult, error) {
	if err := validateEntries(req.Medications); err != nil {
		return CheckResult{}, err
	}
	pc, err := s.resolvePatient(ctx, req.PatientID, req.Patient)
	if err != nil {
		return CheckResult{}, err
	}

	key := regimenKey(req.Medications, pc)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(CheckResult), nil
		}
	}
	res := Check(req.Medications, pc)
	if s.cache != nil {
		s.cache.SetDefault(key, res)
	}
	return res, nil
}

func (s *Service) resolvePatient(ctx context.Context, id *uuid.UUID, explicit *PatientContext) (PatientContext, error) {
	var pc PatientContext
	if id != nil {
		if s.patients == nil {
			return pc, fmt.Errorf("%w: patient lookup is not available", ErrInvalidInput)
		}
		stored, err := s.patients.PainContext(ctx, *id)
		if err != nil {
			return pc, fmt.Errorf("load patient %s: %w", id, err)
		}
		pc = stored
	}
	if explicit != nil {
		norm, err := explicit.Normalize()
		if err != nil {
			return pc, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		pc = pc.Merge(norm)
	}
	return pc, nil
}

// regimenKey hashes the entries as submitted, in sorted order. Names stay
// untouched because findings and the breakdown echo them back.
func regimenKey(entries []MedicationEntry, pc PatientContext) string {
	norm := make([]MedicationEntry, len(entries))
	copy(norm, entries)
	sort.Slice(norm, func(i, j int) bool {
		a, _ := json.Marshal(norm[i])
		b, _ := json.Marshal(norm[j])
		return string(a) < string(b)
	})
	raw, _ := json.Marshal(struct {
		M []MedicationEntry `json:"m"`
		P PatientContext    `json:"p"`
	}{norm, pc})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *Service) Suggest(q string) []Suggestion {
	return Suggest(q, maxSuggestions)
}

// CreateAssessment computes the calculator output for the regimen and
// stores it against the patient.
func (s *Service) CreateAssessment(ctx context.Context, a *Assessment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if len(a.Medications) == 0 {
		return fmt.Errorf("%w: at least one medication is required", ErrInvalidInput)
	}
	if err := validateEntries(a.Medications); err != nil {
		return err
	}
	if a.PainScore != nil && (*a.PainScore < 0 || *a.PainScore > 10) {
		return fmt.Errorf("%w: pain_score must be between 0 and 10", ErrInvalidInput)
	}

	var pc PatientContext
	if s.patients != nil {
		stored, err := s.patients.PainContext(ctx, a.PatientID)
		if err != nil {
			return fmt.Errorf("load patient %s: %w", a.PatientID, err)
		}
		pc = stored
	}

	res := Check(a.Medications, pc)
	a.TotalMMEPerDay = res.TotalMMEPerDay
	a.RiskTier = res.RiskTier
	a.Findings = res.Findings
	a.HighestSeverity = res.HighestSeverity
	a.AssessedBy = auth.UserIDFromContext(ctx)

	if err := s.assessments.Create(ctx, a); err != nil {
		return err
	}
	s.logger.Info().
		Str("assessment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Float64("total_mme", a.TotalMMEPerDay).
		Int("findings", len(a.Findings)).
		Msg("pain assessment recorded")
	return nil
}

func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.assessments.GetByID(ctx, id)
}

func (s *Service) ListAssessments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	return s.assessments.ListByPatient(ctx, patientID, limit, offset)
}
