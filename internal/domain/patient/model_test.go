package patient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onco/onco/internal/domain/pain"
)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPatient_Age(t *testing.T) {
	p := &Patient{BirthDate: date(1960, time.June, 15)}
	assert.Equal(t, 64, *p.Age(time.Date(2025, time.June, 14, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 65, *p.Age(time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)))

	assert.Nil(t, (&Patient{}).Age(time.Now()))
}

func TestPatient_PainContext(t *testing.T) {
	p := &Patient{
		BirthDate:       date(1950, time.January, 1),
		RenalClearance:  ptr(25.0),
		HasSleepApnea:   true,
		CYP2D6Phenotype: ptr("ultrarapid"),
	}
	pc := p.PainContext(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))

	require.NotNil(t, pc.Age)
	assert.Equal(t, 75, *pc.Age)
	assert.Equal(t, 25.0, *pc.RenalClearance)
	assert.True(t, *pc.HasSleepApnea)
	assert.False(t, *pc.HasRespiratoryDisease)
	assert.False(t, *pc.IsPregnant)
	assert.Equal(t, pain.PhenotypeUltrarapid, *pc.CYP2D6Phenotype)
}

func TestPatient_PainContext_FeedsEvaluator(t *testing.T) {
	p := &Patient{RenalClearance: ptr(18.0)}
	findings := pain.Evaluate([]pain.MedicationEntry{
		{Name: "morphine", Route: pain.RouteOral, DoseAmountPerAdministration: 15, AdministrationsPerDay: 2},
	}, p.PainContext(time.Now()))

	require.Len(t, findings, 1)
	assert.Equal(t, "Renal impairment + morphine/codeine", findings[0].Issue)
}

func TestPatient_ToFHIR(t *testing.T) {
	id := uuid.New()
	p := &Patient{
		ID:               id,
		MRN:              "MRN-001",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		BirthDate:        date(1980, time.December, 10),
		Gender:           ptr("female"),
		PrimaryDiagnosis: ptr("Pancreatic adenocarcinoma"),
		CancerStage:      ptr("IV"),
		Active:           true,
	}

	f := p.ToFHIR()
	rt, rid := f.ResourceRef()
	assert.Equal(t, "Patient", rt)
	assert.Equal(t, id.String(), rid)
	assert.Equal(t, "1980-12-10", f.BirthDate)
	assert.Equal(t, "female", f.Gender)
	require.Len(t, f.Identifier, 1)
	assert.Equal(t, "MRN-001", f.Identifier[0].Value)
	assert.Equal(t, "Lovelace", f.Name[0].Family)
	assert.Equal(t, []string{"Ada"}, f.Name[0].Given)
	assert.Len(t, f.Extension, 2)

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"resourceType":"Patient"`)
	assert.NotContains(t, string(raw), "renal-clearance")
}

func TestParseDateFilter(t *testing.T) {
	df, err := ParseDateFilter("ge1950-01-01")
	require.NoError(t, err)
	assert.Equal(t, "ge", df.Op)
	assert.True(t, df.Match(time.Date(1950, 1, 1, 15, 0, 0, 0, time.UTC)))
	assert.False(t, df.Match(time.Date(1949, 12, 31, 0, 0, 0, 0, time.UTC)))

	df, err = ParseDateFilter("1970-05-05")
	require.NoError(t, err)
	assert.Equal(t, "eq", df.Op)
	assert.Equal(t, "=", df.sqlOp())

	_, err = ParseDateFilter("lt05/05/1970")
	assert.Error(t, err)
}

func TestSearchParams_SQLWhere(t *testing.T) {
	where, args := SearchParams{}.sqlWhere()
	assert.Empty(t, where)
	assert.Empty(t, args)

	df, _ := ParseDateFilter("lt2000-01-01")
	where, args = SearchParams{Name: "ada", Identifier: "urn:oid:onco:mrn|M1", BirthDate: df}.sqlWhere()
	assert.Equal(t, " WHERE (first_name ILIKE $1 OR last_name ILIKE $1) AND lower(mrn) = lower($2) AND birth_date < $3", where)
	require.Len(t, args, 3)
	assert.Equal(t, "%ada%", args[0])
	assert.Equal(t, "M1", args[1])
}
