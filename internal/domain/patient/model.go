package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/onco/onco/internal/domain/pain"
	"github.com/onco/onco/internal/platform/fhir"
)

// Patient maps to the patient table.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	MRN                   string     `db:"mrn" json:"mrn"`
	FirstName             string     `db:"first_name" json:"first_name"`
	LastName              string     `db:"last_name" json:"last_name"`
	BirthDate             *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender                *string    `db:"gender" json:"gender,omitempty"`
	PrimaryDiagnosis      *string    `db:"primary_diagnosis" json:"primary_diagnosis,omitempty"`
	CancerStage           *string    `db:"cancer_stage" json:"cancer_stage,omitempty"`
	RenalClearance        *float64   `db:"renal_clearance" json:"renal_clearance,omitempty"`
	CYP2D6Phenotype       *string    `db:"cyp2d6_phenotype" json:"cyp2d6_phenotype,omitempty"`
	HasRespiratoryDisease bool       `db:"has_respiratory_disease" json:"has_respiratory_disease"`
	HasSleepApnea         bool       `db:"has_sleep_apnea" json:"has_sleep_apnea"`
	IsPregnant            bool       `db:"is_pregnant" json:"is_pregnant"`
	Active                bool       `db:"active" json:"active"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Age in whole years at now, or nil without a birth date.
func (p *Patient) Age(now time.Time) *int {
	if p.BirthDate == nil {
		return nil
	}
	b := p.BirthDate.UTC()
	now = now.UTC()
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return &age
}

// PainContext derives the opioid-safety covariates from the stored record.
func (p *Patient) PainContext(now time.Time) pain.PatientContext {
	resp, apnea, pregnant := p.HasRespiratoryDisease, p.HasSleepApnea, p.IsPregnant
	pc := pain.PatientContext{
		Age:                   p.Age(now),
		RenalClearance:        p.RenalClearance,
		HasRespiratoryDisease: &resp,
		HasSleepApnea:         &apnea,
		IsPregnant:            &pregnant,
	}
	if p.CYP2D6Phenotype != nil && *p.CYP2D6Phenotype != "" {
		ph := pain.Phenotype(*p.CYP2D6Phenotype)
		pc.CYP2D6Phenotype = &ph
	}
	return pc
}

const (
	mrnSystem          = "urn:oid:onco:mrn"
	extCancerStage     = "urn:onco:fhir:StructureDefinition/cancer-stage"
	extDiagnosis       = "urn:onco:fhir:StructureDefinition/primary-diagnosis"
	extRenalClearance  = "urn:onco:fhir:StructureDefinition/renal-clearance"
	extCYP2D6Phenotype = "urn:onco:fhir:StructureDefinition/cyp2d6-phenotype"
)

// FHIRPatient is the R4 Patient rendering of a Patient.
type FHIRPatient struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Meta         fhir.Meta         `json:"meta"`
	Active       bool              `json:"active"`
	Identifier   []fhir.Identifier `json:"identifier"`
	Name         []fhir.HumanName  `json:"name"`
	Gender       string            `json:"gender,omitempty"`
	BirthDate    string            `json:"birthDate,omitempty"`
	Extension    []fhir.Extension  `json:"extension,omitempty"`
}

func (f *FHIRPatient) ResourceRef() (string, string) {
	return f.ResourceType, f.ID
}

func (p *Patient) ToFHIR() *FHIRPatient {
	out := &FHIRPatient{
		ResourceType: "Patient",
		ID:           p.ID.String(),
		Meta:         fhir.Meta{LastUpdated: p.UpdatedAt},
		Active:       p.Active,
		Identifier: []fhir.Identifier{{
			Use:    "usual",
			Type:   &fhir.CodeableConcept{Coding: []fhir.Coding{{System: "http://terminology.hl7.org/CodeSystem/v2-0203", Code: "MR"}}},
			System: mrnSystem,
			Value:  p.MRN,
		}},
		Name: []fhir.HumanName{{
			Use:    "official",
			Text:   p.FirstName + " " + p.LastName,
			Family: p.LastName,
			Given:  []string{p.FirstName},
		}},
	}
	if p.Gender != nil {
		out.Gender = *p.Gender
	}
	if p.BirthDate != nil {
		out.BirthDate = p.BirthDate.Format("2006-01-02")
	}

	if p.PrimaryDiagnosis != nil {
		out.Extension = append(out.Extension, fhir.Extension{
			URL:                  extDiagnosis,
			ValueCodeableConcept: &fhir.CodeableConcept{Text: *p.PrimaryDiagnosis},
		})
	}
	if p.CancerStage != nil {
		out.Extension = append(out.Extension, fhir.Extension{URL: extCancerStage, ValueString: *p.CancerStage})
	}
	if p.RenalClearance != nil {
		v := *p.RenalClearance
		out.Extension = append(out.Extension, fhir.Extension{URL: extRenalClearance, ValueDecimal: &v})
	}
	if p.CYP2D6Phenotype != nil {
		out.Extension = append(out.Extension, fhir.Extension{URL: extCYP2D6Phenotype, ValueCode: *p.CYP2D6Phenotype})
	}
	return out
}
