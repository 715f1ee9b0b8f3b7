package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onco/onco/internal/domain/pain"
)

func newTestService() *Service {
	return NewService(NewMemoryPatientRepo(), zerolog.Nop())
}

func seed(t *testing.T, s *Service, first, last, mrn string) *Patient {
	t.Helper()
	p := &Patient{FirstName: first, LastName: last, MRN: mrn}
	require.NoError(t, s.CreatePatient(context.Background(), p))
	return p
}

func TestService_CreatePatient(t *testing.T) {
	s := newTestService()
	p := &Patient{FirstName: " Ada ", LastName: "Lovelace", MRN: "M1", Gender: ptr("Female")}
	require.NoError(t, s.CreatePatient(context.Background(), p))

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.True(t, p.Active)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "female", *p.Gender)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestService_CreatePatient_PhenotypeSpelling(t *testing.T) {
	s := newTestService()
	p := &Patient{FirstName: "F", LastName: "L", MRN: "M2", CYP2D6Phenotype: ptr("Ultra-Rapid")}
	require.NoError(t, s.CreatePatient(context.Background(), p))
	assert.Equal(t, "ultrarapid", *p.CYP2D6Phenotype)
}

func TestService_CreatePatient_Validation(t *testing.T) {
	tests := []struct {
		name string
		p    Patient
	}{
		{"missing first name", Patient{LastName: "L", MRN: "M"}},
		{"missing last name", Patient{FirstName: "F", MRN: "M"}},
		{"missing mrn", Patient{FirstName: "F", LastName: "L"}},
		{"bad gender", Patient{FirstName: "F", LastName: "L", MRN: "M", Gender: ptr("x")}},
		{"bad phenotype", Patient{FirstName: "F", LastName: "L", MRN: "M", CYP2D6Phenotype: ptr("fast")}},
		{"negative clearance", Patient{FirstName: "F", LastName: "L", MRN: "M", RenalClearance: ptr(-1.0)}},
	}
	s := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			assert.Error(t, s.CreatePatient(context.Background(), &p))
		})
	}
}

func TestService_MRNUnique(t *testing.T) {
	s := newTestService()
	first := seed(t, s, "Ada", "Lovelace", "M1")

	err := s.CreatePatient(context.Background(), &Patient{FirstName: "Alan", LastName: "Turing", MRN: "m1"})
	assert.ErrorIs(t, err, ErrDuplicateMRN)

	second := seed(t, s, "Alan", "Turing", "M2")
	second.MRN = "M1"
	assert.ErrorIs(t, s.UpdatePatient(context.Background(), second), ErrDuplicateMRN)

	first.LastName = "King"
	require.NoError(t, s.UpdatePatient(context.Background(), first))
	got, err := s.GetPatientByMRN(context.Background(), "M1")
	require.NoError(t, err)
	assert.Equal(t, "King", got.LastName)
}

func TestService_UpdateDelete_NotFound(t *testing.T) {
	s := newTestService()
	missing := &Patient{ID: uuid.New(), FirstName: "A", LastName: "B", MRN: "C"}
	assert.ErrorIs(t, s.UpdatePatient(context.Background(), missing), ErrNotFound)
	assert.ErrorIs(t, s.DeletePatient(context.Background(), missing.ID), ErrNotFound)

	p := seed(t, s, "Ada", "Lovelace", "M1")
	require.NoError(t, s.DeletePatient(context.Background(), p.ID))
	_, err := s.GetPatient(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Search(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	seed(t, s, "Ada", "Lovelace", "ONC-100")
	seed(t, s, "Alan", "Turing", "ONC-200")
	grace := &Patient{FirstName: "Grace", LastName: "Hopper", MRN: "ONC-300", Gender: ptr("female"), BirthDate: date(1906, time.December, 9)}
	require.NoError(t, s.CreatePatient(ctx, grace))

	all, total, err := s.SearchPatients(ctx, SearchParams{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"Hopper", "Lovelace", "Turing"}, lastNames(all))

	byQuery, _, _ := s.SearchPatients(ctx, SearchParams{Query: "onc-2"}, 10, 0)
	assert.Equal(t, []string{"Turing"}, lastNames(byQuery))

	byName, _, _ := s.SearchPatients(ctx, SearchParams{Name: "a"}, 10, 0)
	assert.Equal(t, []string{"Hopper", "Lovelace", "Turing"}, lastNames(byName))

	byID, _, _ := s.SearchPatients(ctx, SearchParams{Identifier: "urn:oid:onco:mrn|ONC-100"}, 10, 0)
	assert.Equal(t, []string{"Lovelace"}, lastNames(byID))

	df, _ := ParseDateFilter("lt1950-01-01")
	byDate, _, _ := s.SearchPatients(ctx, SearchParams{Gender: "female", BirthDate: df}, 10, 0)
	assert.Equal(t, []string{"Hopper"}, lastNames(byDate))

	page, total, _ := s.SearchPatients(ctx, SearchParams{}, 2, 2)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"Turing"}, lastNames(page))
}

func lastNames(ps []*Patient) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.LastName)
	}
	return out
}

func TestService_PainContext(t *testing.T) {
	s := newTestService()
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	p := &Patient{FirstName: "A", LastName: "B", MRN: "M", BirthDate: date(1955, time.June, 1), IsPregnant: false}
	require.NoError(t, s.CreatePatient(context.Background(), p))

	pc, err := s.PainContext(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 69, *pc.Age)

	_, err = s.PainContext(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, pain.ErrPatientNotFound))
}

func TestService_PainLookupWiring(t *testing.T) {
	patients := newTestService()
	p := &Patient{FirstName: "A", LastName: "B", MRN: "M", HasRespiratoryDisease: true}
	require.NoError(t, patients.CreatePatient(context.Background(), p))

	calc := pain.NewService(pain.NewMemoryAssessmentRepo(), patients, 0, zerolog.Nop())
	res, err := calc.SafetyCheck(context.Background(), pain.SafetyCheckRequest{
		Medications: []pain.MedicationEntry{{Name: "oxycodone", Route: pain.RouteOral, DoseAmountPerAdministration: 5, AdministrationsPerDay: 2}},
		PatientID:   &p.ID,
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Respiratory compromise + opioid", res.Findings[0].Issue)
}
