package pain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/onco/onco/internal/platform/fhir"
)

const CDSServiceID = "opioid-safety"

// RegisterCDSService exposes the safety check as an order-sign CDS hook.
// Draft MedicationRequests are read from context.draftOrders.
func (s *Service) RegisterCDSService(h *fhir.CDSHooksHandler) {
	h.RegisterService(fhir.CDSService{
		Hook:        "order-sign",
		Title:       "Opioid safety check",
		Description: "Flags opioid interactions, patient risk factors and high daily MME in draft medication orders.",
		ID:          CDSServiceID,
		Prefetch: map[string]string{
			"patient": "Patient/{{context.patientId}}",
		},
	}, s.handleOrderSign)

	h.RegisterFeedbackHandler(CDSServiceID, func(_ context.Context, serviceID string, fb fhir.CDSFeedbackRequest) error {
		reasons := make([]string, 0, len(fb.OverrideReasons))
		for _, r := range fb.OverrideReasons {
			reasons = append(reasons, r.Code)
		}
		s.logger.Info().
			Str("service", serviceID).
			Str("card", fb.Card).
			Str("outcome", fb.Outcome).
			Strs("override_reasons", reasons).
			Msg("cds card feedback")
		return nil
	})
}

func (s *Service) handleOrderSign(ctx context.Context, req fhir.CDSHookRequest) (*fhir.CDSHookResponse, error) {
	entries, err := medicationsFromDraftOrders(req.Context["draftOrders"])
	if err != nil {
		return nil, err
	}

	check := SafetyCheckRequest{Medications: entries}
	if id, err := uuid.Parse(req.ContextString("patientId")); err == nil && s.patients != nil {
		check.PatientID = &id
	}
	res, err := s.SafetyCheck(ctx, check)
	if err != nil {
		return nil, err
	}
	return &fhir.CDSHookResponse{Cards: cardsFor(res)}, nil
}

func cardsFor(res CheckResult) []fhir.CDSCard {
	cards := make([]fhir.CDSCard, 0, len(res.Findings))
	for _, f := range res.Findings {
		card := fhir.CDSCard{
			UUID:      uuid.NewString(),
			Summary:   truncate(f.Issue, 140),
			Detail:    strings.TrimSpace(f.Explanation + "\n\n" + f.Recommendation),
			Indicator: fhir.IndicatorWarning,
			Source:    fhir.CDSSource{Label: "Opioid safety check"},
		}
		if f.Severity == SeverityMajor {
			card.Indicator = fhir.IndicatorCritical
			card.Suggestions = []fhir.CDSSuggestion{{Label: "Co-prescribe naloxone", UUID: uuid.NewString()}}
		}
		for _, ref := range f.References {
			card.Links = append(card.Links, fhir.CDSLink{Label: ref.Label, URL: ref.URL, Type: "absolute"})
		}
		if len(f.References) > 0 {
			card.Source.URL = f.References[0].URL
		}
		cards = append(cards, card)
	}
	return cards
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Minimal MedicationRequest shape; only the fields the calculator needs.
type medicationRequest struct {
	ResourceType              string `json:"resourceType"`
	MedicationCodeableConcept struct {
		Text   string `json:"text"`
		Coding []struct {
			Display string `json:"display"`
		} `json:"coding"`
	} `json:"medicationCodeableConcept"`
	DosageInstruction []struct {
		Route *struct {
			Text   string `json:"text"`
			Coding []struct {
				Display string `json:"display"`
			} `json:"coding"`
		} `json:"route"`
		Timing struct {
			Repeat struct {
				Frequency  float64 `json:"frequency"`
				Period     float64 `json:"period"`
				PeriodUnit string  `json:"periodUnit"`
			} `json:"repeat"`
		} `json:"timing"`
		DoseAndRate []struct {
			DoseQuantity struct {
				Value float64 `json:"value"`
				Unit  string  `json:"unit"`
			} `json:"doseQuantity"`
		} `json:"doseAndRate"`
	} `json:"dosageInstruction"`
}

func medicationsFromDraftOrders(raw json.RawMessage) ([]MedicationEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode draftOrders: %w", err)
	}

	var out []MedicationEntry
	for _, e := range bundle.Entry {
		var mr medicationRequest
		if err := json.Unmarshal(e.Resource, &mr); err != nil {
			return nil, fmt.Errorf("decode draft order: %w", err)
		}
		if mr.ResourceType != "MedicationRequest" {
			continue
		}
		out = append(out, mr.toEntry())
	}
	return out, nil
}

func (mr medicationRequest) toEntry() MedicationEntry {
	e := MedicationEntry{Name: mr.MedicationCodeableConcept.Text, Route: RouteOral}
	if e.Name == "" && len(mr.MedicationCodeableConcept.Coding) > 0 {
		e.Name = mr.MedicationCodeableConcept.Coding[0].Display
	}
	if len(mr.DosageInstruction) == 0 {
		return e
	}
	di := mr.DosageInstruction[0]
	if di.Route != nil {
		text := di.Route.Text
		if text == "" && len(di.Route.Coding) > 0 {
			text = di.Route.Coding[0].Display
		}
		e.Route = routeFromText(text)
	}
	if len(di.DoseAndRate) > 0 {
		dq := di.DoseAndRate[0].DoseQuantity
		e.DoseAmountPerAdministration = dq.Value
		if strings.Contains(strings.ToLower(dq.Unit), "/h") {
			v := dq.Value
			e.PatchStrengthMicrogramsPerHour = &v
		}
	}
	e.AdministrationsPerDay = perDay(di.Timing.Repeat.Frequency, di.Timing.Repeat.Period, di.Timing.Repeat.PeriodUnit)
	return e
}

func routeFromText(text string) Route {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "transdermal"):
		return RouteTransdermal
	case strings.Contains(t, "sublingual"):
		return RouteSublingual
	case strings.Contains(t, "buccal"):
		return RouteBuccal
	case strings.Contains(t, "intravenous"), t == "iv":
		return RouteIV
	case strings.Contains(t, "intramuscular"), t == "im":
		return RouteIM
	case strings.Contains(t, "oral"), t == "po", t == "":
		return RouteOral
	}
	return Route(t)
}

var hoursPerUnit = map[string]float64{"h": 1, "d": 24, "wk": 168}

func perDay(frequency, period float64, unit string) float64 {
	hours, ok := hoursPerUnit[unit]
	if frequency <= 0 || period <= 0 || !ok {
		return 0
	}
	return frequency * 24 / (period * hours)
}
