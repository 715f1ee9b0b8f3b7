package pain

import (
	"math"
	"strings"
)

const (
	elevatedMMEThreshold = 50
	highMMEThreshold     = 90
)

// CalculateMME converts each entry to daily morphine milligram equivalents
// and sums them. Unknown drugs and unsupported routes contribute zero, and
// buprenorphine is always excluded from the total.
func CalculateMME(entries []MedicationEntry) MMEResult {
	breakdown := make([]DoseBreakdown, 0, len(entries))
	var total float64
	for _, e := range entries {
		b := convert(e)
		total += b.MMEPerDay
		breakdown = append(breakdown, b)
	}
	total = round1(total)
	return MMEResult{
		TotalMMEPerDay:         total,
		PerMedicationBreakdown: breakdown,
		RiskTier:               TierFor(total),
	}
}

// TierFor buckets a daily MME total.
func TierFor(total float64) RiskTier {
	switch {
	case total >= highMMEThreshold:
		return RiskHigh
	case total >= elevatedMMEThreshold:
		return RiskElevated
	default:
		return RiskLow
	}
}

func normalizeRoute(r Route) Route {
	return Route(strings.ToLower(strings.TrimSpace(string(r))))
}

func convert(e MedicationEntry) DoseBreakdown {
	route := normalizeRoute(e.Route)
	b := DoseBreakdown{Name: e.Name, Route: route}

	ing := ResolveIngredient(e.Name)
	if ing == "" {
		b.Note = "not a recognized opioid"
		return b
	}
	b.Ingredient = ing
	b.Recognized = true

	if ing == Buprenorphine {
		b.Excluded = true
		b.Note = "buprenorphine is excluded from MME totals"
		return b
	}
	if !route.Known() {
		b.Note = "unknown route"
		return b
	}
	factor, ok := conversionFactors[ing][route]
	if !ok {
		b.Note = "no conversion factor for " + ing + " by " + string(route) + " route"
		return b
	}

	if ing == Fentanyl && route == RouteTransdermal {
		strength := e.DoseAmountPerAdministration
		if e.PatchStrengthMicrogramsPerHour != nil {
			strength = *e.PatchStrengthMicrogramsPerHour
		}
		if !validAmount(strength) {
			b.Note = "invalid patch strength"
			return b
		}
		if mme, ok := fentanylPatchMME[strength]; ok {
			b.MMEPerDay = mme
		} else {
			b.MMEPerDay = round1(strength * factor)
			b.Note = "non-standard patch strength"
		}
		return b
	}

	if !validAmount(e.DoseAmountPerAdministration) || !validAmount(e.AdministrationsPerDay) {
		b.Note = "invalid dose or frequency"
		return b
	}
	b.MMEPerDay = round1(e.DoseAmountPerAdministration * e.AdministrationsPerDay * factor)
	if ing == Fentanyl {
		b.Note = "dose read as mcg"
	}
	return b
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
