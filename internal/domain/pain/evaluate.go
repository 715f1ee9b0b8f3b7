package pain

import (
	"regexp"
	"sort"
	"strings"
)

// regimen is the per-call view of a medication list that rules query.
type regimen struct {
	entries      []MedicationEntry
	byIngredient map[string][]string
	mme          MMEResult
}

func newRegimen(entries []MedicationEntry) *regimen {
	r := &regimen{
		entries:      entries,
		byIngredient: make(map[string][]string),
		mme:          CalculateMME(entries),
	}
	for _, e := range entries {
		if ing := ResolveIngredient(e.Name); ing != "" {
			r.byIngredient[ing] = append(r.byIngredient[ing], e.Name)
		}
	}
	return r
}

func (r *regimen) hasOpioid() bool {
	return len(r.byIngredient) > 0
}

// opioids returns the sorted display names of every opioid entry.
func (r *regimen) opioids() []string {
	var names []string
	for _, n := range r.byIngredient {
		names = append(names, n...)
	}
	return sortedUnique(names)
}

func (r *regimen) withIngredient(ingredients ...string) []string {
	var names []string
	for _, ing := range ingredients {
		names = append(names, r.byIngredient[ing]...)
	}
	return sortedUnique(names)
}

// matching returns the sorted names of entries that match any pattern.
func (r *regimen) matching(patterns ...*regexp.Regexp) []string {
	var names []string
	for _, e := range r.entries {
		for _, p := range patterns {
			if p.MatchString(e.Name) {
				names = append(names, e.Name)
				break
			}
		}
	}
	return sortedUnique(names)
}

// sortedUnique trims names, drops blanks and case-insensitive duplicates,
// and sorts case-insensitively so entry order never shows in output.
func sortedUnique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}

// Evaluate runs every interaction rule against the regimen and patient.
// Findings come back in rule-table order; the result is never nil.
func Evaluate(entries []MedicationEntry, patient PatientContext) []SafetyFinding {
	return evaluate(newRegimen(entries), patient)
}

func evaluate(r *regimen, patient PatientContext) []SafetyFinding {
	findings := make([]SafetyFinding, 0)
	for _, rl := range rules {
		sev, expl, ok := rl.check(r, patient)
		if !ok {
			continue
		}
		findings = append(findings, SafetyFinding{
			Issue:          rl.issue,
			Severity:       sev,
			Explanation:    expl,
			Recommendation: rl.recommendation,
			References:     append([]Reference(nil), rl.references...),
		})
	}
	return findings
}

// CheckResult bundles the evaluator output with the MME aggregate it used.
type CheckResult struct {
	Findings        []SafetyFinding `json:"findings"`
	TotalMMEPerDay  float64         `json:"total_mme_per_day"`
	RiskTier        RiskTier        `json:"risk_tier"`
	HighestSeverity Severity        `json:"highest_severity,omitempty"`
}

// Check evaluates the regimen once and returns findings with the totals.
func Check(entries []MedicationEntry, patient PatientContext) CheckResult {
	r := newRegimen(entries)
	findings := evaluate(r, patient)
	return CheckResult{
		Findings:        findings,
		TotalMMEPerDay:  r.mme.TotalMMEPerDay,
		RiskTier:        r.mme.RiskTier,
		HighestSeverity: HighestSeverity(findings),
	}
}
