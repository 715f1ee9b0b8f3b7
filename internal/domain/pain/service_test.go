package pain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onco/onco/internal/platform/auth"
)

// -- Mock Patient Lookup --

type mockPatientLookup struct {
	contexts map[uuid.UUID]PatientContext
	calls    int
	err      error
}

func newMockPatientLookup() *mockPatientLookup {
	return &mockPatientLookup{contexts: make(map[uuid.UUID]PatientContext)}
}

func (m *mockPatientLookup) PainContext(_ context.Context, id uuid.UUID) (PatientContext, error) {
	m.calls++
	if m.err != nil {
		return PatientContext{}, m.err
	}
	pc, ok := m.contexts[id]
	if !ok {
		return PatientContext{}, ErrPatientNotFound
	}
	return pc, nil
}

func newTestService(lookup PatientLookup, ttl time.Duration) *Service {
	return NewService(NewMemoryAssessmentRepo(), lookup, ttl, zerolog.Nop())
}

func TestService_CalculateMME_TooMany(t *testing.T) {
	svc := newTestService(nil, 0)
	entries := make([]MedicationEntry, MaxMedications+1)
	_, err := svc.CalculateMME(entries)
	assert.Error(t, err)
}

func TestService_SafetyCheck_StoredPatient(t *testing.T) {
	lookup := newMockPatientLookup()
	id := uuid.New()
	lookup.contexts[id] = PatientContext{RenalClearance: ptr(18.0)}
	svc := newTestService(lookup, 0)

	res, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{
		Medications: []MedicationEntry{oral("morphine", 5, 2)},
		PatientID:   &id,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Renal impairment + morphine/codeine"}, issues(res.Findings))
	assert.Equal(t, SeverityMajor, res.HighestSeverity)
}

func TestService_SafetyCheck_ExplicitOverridesStored(t *testing.T) {
	lookup := newMockPatientLookup()
	id := uuid.New()
	lookup.contexts[id] = PatientContext{RenalClearance: ptr(18.0)}
	svc := newTestService(lookup, 0)

	res, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{
		Medications: []MedicationEntry{oral("morphine", 5, 2)},
		PatientID:   &id,
		Patient:     &PatientContext{RenalClearance: ptr(60.0)},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
}

func TestService_SafetyCheck_UnknownPatient(t *testing.T) {
	svc := newTestService(newMockPatientLookup(), 0)
	id := uuid.New()
	_, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{PatientID: &id})
	assert.True(t, errors.Is(err, ErrPatientNotFound))
}

func TestService_SafetyCheck_NoLookup(t *testing.T) {
	svc := newTestService(nil, 0)
	id := uuid.New()
	_, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{PatientID: &id})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestService_SafetyCheck_LookupFailureIsNotInvalidInput(t *testing.T) {
	lookup := newMockPatientLookup()
	lookup.err = errors.New("connection refused")
	svc := newTestService(lookup, 0)
	id := uuid.New()

	_, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{PatientID: &id})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, errors.Is(err, ErrPatientNotFound))
}

func TestService_SafetyCheck_PhenotypeSpellings(t *testing.T) {
	svc := newTestService(nil, 0)
	codeine := []MedicationEntry{oral("codeine", 30, 4)}

	for _, spelling := range []string{"ultrarapid", "Ultrarapid", "ULTRARAPID", "ultra-rapid", " Ultra Rapid "} {
		t.Run(spelling, func(t *testing.T) {
			ph := Phenotype(spelling)
			res, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{
				Medications: codeine,
				Patient:     &PatientContext{CYP2D6Phenotype: &ph},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"CYP2D6 phenotype + codeine/tramadol"}, issues(res.Findings))
			assert.Equal(t, SeverityMajor, res.HighestSeverity)
		})
	}

	unknown := Phenotype("extensive")
	_, err := svc.SafetyCheck(context.Background(), SafetyCheckRequest{
		Medications: codeine,
		Patient:     &PatientContext{CYP2D6Phenotype: &unknown},
	})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParsePhenotype(t *testing.T) {
	tests := []struct {
		in      string
		want    Phenotype
		wantErr bool
	}{
		{"poor", PhenotypePoor, false},
		{"Intermediate", PhenotypeIntermediate, false},
		{" NORMAL ", PhenotypeNormal, false},
		{"Ultra_Rapid", PhenotypeUltrarapid, false},
		{"", "", true},
		{"rapid", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePhenotype(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestService_SafetyCheck_CachesCanonicalRegimen(t *testing.T) {
	svc := newTestService(nil, time.Minute)
	ctx := context.Background()

	first, err := svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("oxycodone", 5, 4), oral("alprazolam", 1, 1)},
	})
	require.NoError(t, err)
	second, err := svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("alprazolam", 1, 1), oral("oxycodone", 5, 4)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, svc.cache.ItemCount())
	assert.Equal(t, first, second)

	_, err = svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("oxycodone", 5, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.cache.ItemCount())
}

func TestService_SafetyCheck_CachedResultEchoesCallerNames(t *testing.T) {
	svc := newTestService(nil, time.Minute)
	ctx := context.Background()

	_, err := svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("oxycodone", 5, 4), oral("alprazolam", 1, 1)},
	})
	require.NoError(t, err)

	res, err := svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("OxyContin", 5, 4), oral("Xanax", 1, 1)},
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Contains(t, res.Findings[0].Explanation, "OxyContin")
	assert.Contains(t, res.Findings[0].Explanation, "Xanax")
	assert.NotContains(t, res.Findings[0].Explanation, "alprazolam")

	upper, err := svc.SafetyCheck(ctx, SafetyCheckRequest{
		Medications: []MedicationEntry{oral("Oxycodone", 5, 4), oral("Alprazolam", 1, 1)},
	})
	require.NoError(t, err)
	require.Len(t, upper.Findings, 1)
	assert.Contains(t, upper.Findings[0].Explanation, "Oxycodone")
	assert.Contains(t, upper.Findings[0].Explanation, "Alprazolam")
	assert.Equal(t, 3, svc.cache.ItemCount())
}

func TestService_SafetyCheck_CacheKeyIncludesPatient(t *testing.T) {
	meds := []MedicationEntry{oral("morphine", 5, 2)}
	a := regimenKey(meds, PatientContext{})
	b := regimenKey(meds, PatientContext{RenalClearance: ptr(20.0)})
	assert.NotEqual(t, a, b)
}

func TestService_CreateAssessment(t *testing.T) {
	lookup := newMockPatientLookup()
	id := uuid.New()
	lookup.contexts[id] = PatientContext{IsPregnant: ptr(true)}
	svc := newTestService(lookup, 0)

	ctx := auth.WithIdentity(context.Background(), "dr-ames", []string{auth.RolePhysician})
	a := &Assessment{
		PatientID:   id,
		PainScore:   ptr(6),
		Medications: []MedicationEntry{oral("oxycodone", 10, 4)},
	}
	require.NoError(t, svc.CreateAssessment(ctx, a))

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.InDelta(t, 60, a.TotalMMEPerDay, 1e-9)
	assert.Equal(t, RiskElevated, a.RiskTier)
	assert.Equal(t, "dr-ames", a.AssessedBy)
	assert.Equal(t, []string{"Pregnancy + opioid", "High daily MME"}, issues(a.Findings))

	got, err := svc.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.TotalMMEPerDay, got.TotalMMEPerDay)

	list, total, err := svc.ListAssessments(ctx, id, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

func TestService_CreateAssessment_Validation(t *testing.T) {
	lookup := newMockPatientLookup()
	known := uuid.New()
	lookup.contexts[known] = PatientContext{}
	svc := newTestService(lookup, 0)
	meds := []MedicationEntry{oral("morphine", 5, 2)}

	tests := []struct {
		name string
		a    Assessment
	}{
		{"missing patient", Assessment{Medications: meds}},
		{"no medications", Assessment{PatientID: known}},
		{"pain score too high", Assessment{PatientID: known, Medications: meds, PainScore: ptr(11)}},
		{"negative pain score", Assessment{PatientID: known, Medications: meds, PainScore: ptr(-1)}},
		{"unknown patient", Assessment{PatientID: uuid.New(), Medications: meds}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.a
			assert.Error(t, svc.CreateAssessment(context.Background(), &a))
		})
	}
}

func TestMemoryAssessmentRepo_ListNewestFirst(t *testing.T) {
	repo := NewMemoryAssessmentRepo()
	ctx := context.Background()
	patient := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &Assessment{PatientID: patient, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, repo.Create(ctx, &Assessment{PatientID: uuid.New()}))

	page, total, err := repo.ListByPatient(ctx, patient, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, base.Add(3*time.Hour), page[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Hour), page[1].CreatedAt)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
