package pain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Route string

const (
	RouteOral        Route = "oral"
	RouteTransdermal Route = "transdermal"
	RouteSublingual  Route = "sublingual"
	RouteBuccal      Route = "buccal"
	RouteIV          Route = "iv"
	RouteIM          Route = "im"
)

// Known reports whether r is one of the supported administration routes.
func (r Route) Known() bool {
	switch r {
	case RouteOral, RouteTransdermal, RouteSublingual, RouteBuccal, RouteIV, RouteIM:
		return true
	}
	return false
}

// MedicationEntry is one line of a regimen as entered by the clinician.
// DoseAmountPerAdministration is in mg, except for non-patch fentanyl
// where it is read as mcg.
type MedicationEntry struct {
	Name                           string   `json:"name" yaml:"name"`
	Route                          Route    `json:"route" yaml:"route"`
	DoseAmountPerAdministration    float64  `json:"dose_amount_per_administration" yaml:"dose"`
	AdministrationsPerDay          float64  `json:"administrations_per_day" yaml:"per_day"`
	PatchStrengthMicrogramsPerHour *float64 `json:"patch_strength_mcg_per_hr,omitempty" yaml:"patch_mcg_per_hr,omitempty"`
}

type DoseBreakdown struct {
	Name       string  `json:"name"`
	Route      Route   `json:"route"`
	Ingredient string  `json:"ingredient,omitempty"`
	MMEPerDay  float64 `json:"mme_per_day"`
	Recognized bool    `json:"recognized"`
	Excluded   bool    `json:"excluded,omitempty"`
	Note       string  `json:"note,omitempty"`
}

type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskElevated RiskTier = "elevated"
	RiskHigh     RiskTier = "high"
)

// MMEResult is the calculator output. Each breakdown value and the total are
// rounded to one decimal, so TotalMMEPerDay matches a float sum of the
// breakdown within 0.1, not bit for bit.
type MMEResult struct {
	TotalMMEPerDay         float64         `json:"total_mme_per_day"`
	PerMedicationBreakdown []DoseBreakdown `json:"per_medication_breakdown"`
	RiskTier               RiskTier        `json:"risk_tier"`
}

type Phenotype string

const (
	PhenotypePoor         Phenotype = "poor"
	PhenotypeIntermediate Phenotype = "intermediate"
	PhenotypeNormal       Phenotype = "normal"
	PhenotypeUltrarapid   Phenotype = "ultrarapid"
)

// ParsePhenotype accepts any casing and the hyphenated or spaced spellings
// ("Ultra-rapid", "ultra rapid").
func ParsePhenotype(s string) (Phenotype, error) {
	p := Phenotype(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s))))
	switch p {
	case PhenotypePoor, PhenotypeIntermediate, PhenotypeNormal, PhenotypeUltrarapid:
		return p, nil
	}
	return "", fmt.Errorf("unknown CYP2D6 phenotype %q", s)
}

// PatientContext holds the covariates the rule evaluator looks at.
// Nil fields are unknown and never trigger a rule.
type PatientContext struct {
	Age                   *int       `json:"age,omitempty" yaml:"age,omitempty"`
	RenalClearance        *float64   `json:"renal_clearance,omitempty" yaml:"renal_clearance,omitempty"`
	HasRespiratoryDisease *bool      `json:"has_respiratory_disease,omitempty" yaml:"respiratory_disease,omitempty"`
	HasSleepApnea         *bool      `json:"has_sleep_apnea,omitempty" yaml:"sleep_apnea,omitempty"`
	IsPregnant            *bool      `json:"is_pregnant,omitempty" yaml:"pregnant,omitempty"`
	CYP2D6Phenotype       *Phenotype `json:"cyp2d6_phenotype,omitempty" yaml:"cyp2d6,omitempty"`
}

// Normalize returns c with the phenotype in canonical form.
func (c PatientContext) Normalize() (PatientContext, error) {
	if c.CYP2D6Phenotype != nil {
		p, err := ParsePhenotype(string(*c.CYP2D6Phenotype))
		if err != nil {
			return c, err
		}
		c.CYP2D6Phenotype = &p
	}
	return c, nil
}

// Merge returns c with every non-nil field of o applied on top.
func (c PatientContext) Merge(o PatientContext) PatientContext {
	if o.Age != nil {
		c.Age = o.Age
	}
	if o.RenalClearance != nil {
		c.RenalClearance = o.RenalClearance
	}
	if o.HasRespiratoryDisease != nil {
		c.HasRespiratoryDisease = o.HasRespiratoryDisease
	}
	if o.HasSleepApnea != nil {
		c.HasSleepApnea = o.HasSleepApnea
	}
	if o.IsPregnant != nil {
		c.IsPregnant = o.IsPregnant
	}
	if o.CYP2D6Phenotype != nil {
		c.CYP2D6Phenotype = o.CYP2D6Phenotype
	}
	return c
}

type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMajor:
		return 2
	case SeverityModerate:
		return 1
	}
	return 0
}

type Reference struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type SafetyFinding struct {
	Issue          string      `json:"issue"`
	Severity       Severity    `json:"severity"`
	Explanation    string      `json:"explanation,omitempty"`
	Recommendation string      `json:"recommendation,omitempty"`
	References     []Reference `json:"references,omitempty"`
}

// HighestSeverity returns the most severe level among findings, or "".
func HighestSeverity(findings []SafetyFinding) Severity {
	var best Severity
	for _, f := range findings {
		if f.Severity.rank() > best.rank() {
			best = f.Severity
		}
	}
	return best
}

// Assessment is a persisted snapshot of a patient's regimen and the
// calculator output at the time it was recorded.
type Assessment struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	PainScore       *int              `json:"pain_score,omitempty"`
	Medications     []MedicationEntry `json:"medications"`
	TotalMMEPerDay  float64           `json:"total_mme_per_day"`
	RiskTier        RiskTier          `json:"risk_tier"`
	Findings        []SafetyFinding   `json:"findings"`
	HighestSeverity Severity          `json:"highest_severity,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	AssessedBy      string            `json:"assessed_by,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
