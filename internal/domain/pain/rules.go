package pain

import (
	"fmt"
	"regexp"
	"strings"
)

// Drug classes matched against free-text medication names.
var (
	benzodiazepinePattern  = regexp.MustCompile(`(?i)\b(alprazolam|xanax|lorazepam|ativan|diazepam|valium|clonazepam|klonopin|temazepam|restoril|midazolam|chlordiazepoxide|librium|oxazepam|triazolam|halcion|clobazam|estazolam|clorazepate)\b`)
	zDrugPattern           = regexp.MustCompile(`(?i)\b(zolpidem|ambien|zaleplon|sonata|eszopiclone|lunesta|zopiclone)\b`)
	gabapentinoidPattern   = regexp.MustCompile(`(?i)\b(gabapentin|neurontin|gralise|horizant|pregabalin|lyrica|mirogabalin)\b`)
	cyp3a4InhibitorPattern = regexp.MustCompile(`(?i)\b(clarithromycin|erythromycin|ketoconazole|itraconazole|voriconazole|posaconazole|fluconazole|ritonavir|paxlovid|cobicistat|nefazodone|diltiazem|verapamil|grapefruit|aprepitant|imatinib|idelalisib|ribociclib)\b`)
	cyp3a4InducerPattern   = regexp.MustCompile(`(?i)\b(rifampin|rifampicin|rifabutin|carbamazepine|tegretol|phenytoin|dilantin|phenobarbital|enzalutamide|apalutamide|mitotane|efavirenz|st\.?\s*john'?s\s*wort)`)
	qtProlongingPattern    = regexp.MustCompile(`(?i)\b(ondansetron|zofran|haloperidol|citalopram|escitalopram|amiodarone|sotalol|levofloxacin|moxifloxacin|ciprofloxacin|azithromycin|clarithromycin|erythromycin|quetiapine|ziprasidone|droperidol|domperidone|vandetanib|nilotinib|arsenic\s+trioxide|ribociclib|osimertinib)\b`)
	serotonergicPattern    = regexp.MustCompile(`(?i)\b(sertraline|zoloft|fluoxetine|prozac|paroxetine|paxil|citalopram|celexa|escitalopram|lexapro|fluvoxamine|venlafaxine|effexor|duloxetine|cymbalta|desvenlafaxine|trazodone|mirtazapine|amitriptyline|nortriptyline|clomipramine|linezolid|methylene\s+blue|phenelzine|tranylcypromine|selegiline|sumatriptan|rizatriptan|lithium|buspirone)\b`)
)

// Opioid ingredient groups used by the pharmacokinetic rules.
var (
	cyp3a4Opioids       = []string{Fentanyl, Oxycodone, Hydrocodone, Methadone, Buprenorphine}
	serotonergicOpioids = []string{Tramadol, Tapentadol, Meperidine, Methadone, Fentanyl}
	renalRiskOpioids    = []string{Morphine, Codeine}
	cyp2d6Prodrugs      = []string{Codeine, Tramadol}
)

const renalClearanceThreshold = 30

var (
	refCDC2022 = Reference{
		Label: "CDC Clinical Practice Guideline for Prescribing Opioids for Pain (2022)",
		URL:   "https://www.cdc.gov/mmwr/volumes/71/rr/rr7103a1.htm",
	}
	refFDABenzo = Reference{
		Label: "FDA boxed warning: opioids with benzodiazepines",
		URL:   "https://www.fda.gov/drugs/drug-safety-and-availability/fda-drug-safety-communication-fda-warns-about-serious-risks-and-death-when-combining-opioid-pain-or",
	}
	refFDAGabapentinoid = Reference{
		Label: "FDA warning: gabapentinoids and respiratory depression",
		URL:   "https://www.fda.gov/drugs/drug-safety-and-availability/fda-warns-about-serious-breathing-problems-seizure-and-nerve-pain-medicines-gabapentin-neurontin",
	}
	refCPIC = Reference{
		Label: "CPIC guideline for CYP2D6 and opioid therapy",
		URL:   "https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/",
	}
	refFDASerotonin = Reference{
		Label: "FDA safety announcement: opioids and serotonin syndrome",
		URL:   "https://www.fda.gov/drugs/drug-safety-and-availability/fda-drug-safety-communication-fda-warns-about-several-safety-issues-opioid-pain-medicines-requires",
	}
)

// rule is one row of the interaction table. check returns the severity and
// explanation when the rule fires.
type rule struct {
	issue          string
	recommendation string
	references     []Reference
	check          func(r *regimen, p PatientContext) (Severity, string, bool)
}

// rules is evaluated top to bottom; output order follows this table.
var rules = []rule{
	{
		issue:          "Opioid + benzo/Z-drug",
		recommendation: "Avoid concurrent use. If unavoidable, use the lowest effective doses, offer naloxone and monitor for sedation.",
		references:     []Reference{refFDABenzo, refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			sedatives := r.matching(benzodiazepinePattern, zDrugPattern)
			if len(sedatives) == 0 || !r.hasOpioid() {
				return "", "", false
			}
			return SeverityMajor, fmt.Sprintf("%s combined with %s increases the risk of respiratory depression and overdose death.",
				list(r.opioids()), list(sedatives)), true
		},
	},
	{
		issue:          "Opioid + gabapentinoid",
		recommendation: "Start the gabapentinoid at a low dose, titrate slowly and monitor respiratory status.",
		references:     []Reference{refFDAGabapentinoid},
		check: func(r *regimen, p PatientContext) (Severity, string, bool) {
			gaba := r.matching(gabapentinoidPattern)
			if len(gaba) == 0 || !r.hasOpioid() {
				return "", "", false
			}
			expl := fmt.Sprintf("%s with %s adds CNS and respiratory depression.", list(r.opioids()), list(gaba))
			if isTrue(p.HasRespiratoryDisease) || isTrue(p.HasSleepApnea) || (p.Age != nil && *p.Age >= 65) {
				return SeverityMajor, expl + " Risk is higher with respiratory compromise or age 65 and over.", true
			}
			return SeverityModerate, expl, true
		},
	},
	{
		issue:          "CYP3A4 inhibitor + opioid",
		recommendation: "Consider dose reduction or an opioid not metabolized by CYP3A4, and monitor closely when starting or stopping the inhibitor.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			inhibitors := r.matching(cyp3a4InhibitorPattern)
			opioids := r.withIngredient(cyp3a4Opioids...)
			if len(inhibitors) == 0 || len(opioids) == 0 {
				return "", "", false
			}
			return SeverityMajor, fmt.Sprintf("%s can raise levels of %s, prolonging and intensifying opioid effects.",
				list(inhibitors), list(opioids)), true
		},
	},
	{
		issue:          "CYP3A4 inducer + opioid",
		recommendation: "Watch for reduced analgesia and withdrawal; reassess the opioid dose, especially when the inducer is stopped.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			inducers := r.matching(cyp3a4InducerPattern)
			opioids := r.withIngredient(cyp3a4Opioids...)
			if len(inducers) == 0 || len(opioids) == 0 {
				return "", "", false
			}
			return SeverityModerate, fmt.Sprintf("%s can lower levels of %s.", list(inducers), list(opioids)), true
		},
	},
	{
		issue:          "Methadone + QT-prolonging agent",
		recommendation: "Obtain a baseline ECG and repeat after dose changes; avoid the combination when QTc exceeds 500 ms.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			qt := r.matching(qtProlongingPattern)
			methadone := r.withIngredient(Methadone)
			if len(qt) == 0 || len(methadone) == 0 {
				return "", "", false
			}
			return SeverityMajor, fmt.Sprintf("%s and %s both prolong the QT interval.", list(methadone), list(qt)), true
		},
	},
	{
		issue:          "Serotonergic opioid + serotonergic agent",
		recommendation: "Monitor for serotonin syndrome (agitation, hyperthermia, clonus), particularly after dose increases.",
		references:     []Reference{refFDASerotonin},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			agents := r.matching(serotonergicPattern)
			opioids := r.withIngredient(serotonergicOpioids...)
			if len(agents) == 0 || len(opioids) == 0 {
				return "", "", false
			}
			return SeverityMajor, fmt.Sprintf("%s with %s can precipitate serotonin syndrome.", list(opioids), list(agents)), true
		},
	},
	{
		issue:          "Renal impairment + morphine/codeine",
		recommendation: "Prefer hydromorphone, fentanyl or methadone with specialist input; avoid morphine and codeine.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, p PatientContext) (Severity, string, bool) {
			if p.RenalClearance == nil || *p.RenalClearance >= renalClearanceThreshold {
				return "", "", false
			}
			drugs := r.withIngredient(renalRiskOpioids...)
			if len(drugs) == 0 {
				return "", "", false
			}
			return SeverityMajor, fmt.Sprintf("Creatinine clearance %.0f mL/min is below %d; active metabolites of %s accumulate.",
				*p.RenalClearance, renalClearanceThreshold, list(drugs)), true
		},
	},
	{
		issue:          "CYP2D6 phenotype + codeine/tramadol",
		recommendation: "Use a non-CYP2D6-dependent opioid such as morphine (if renal function allows), hydromorphone or oxymorphone.",
		references:     []Reference{refCPIC},
		check: func(r *regimen, p PatientContext) (Severity, string, bool) {
			if p.CYP2D6Phenotype == nil {
				return "", "", false
			}
			drugs := r.withIngredient(cyp2d6Prodrugs...)
			if len(drugs) == 0 {
				return "", "", false
			}
			phenotype, err := ParsePhenotype(string(*p.CYP2D6Phenotype))
			if err != nil {
				return "", "", false
			}
			switch phenotype {
			case PhenotypeUltrarapid:
				return SeverityMajor, fmt.Sprintf("Ultrarapid CYP2D6 metabolizers convert %s to active metabolites quickly, risking toxicity.", list(drugs)), true
			case PhenotypePoor:
				return SeverityModerate, fmt.Sprintf("Poor CYP2D6 metabolizers get little analgesia from %s.", list(drugs)), true
			}
			return "", "", false
		},
	},
	{
		issue:          "Respiratory compromise + opioid",
		recommendation: "Use the lowest effective dose, avoid other sedatives and consider naloxone and overnight monitoring.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, p PatientContext) (Severity, string, bool) {
			if !r.hasOpioid() || !(isTrue(p.HasRespiratoryDisease) || isTrue(p.HasSleepApnea)) {
				return "", "", false
			}
			var conds []string
			if isTrue(p.HasRespiratoryDisease) {
				conds = append(conds, "respiratory disease")
			}
			if isTrue(p.HasSleepApnea) {
				conds = append(conds, "sleep apnea")
			}
			return SeverityModerate, fmt.Sprintf("%s with %s raises the risk of respiratory depression.",
				list(r.opioids()), strings.Join(conds, " and ")), true
		},
	},
	{
		issue:          "Pregnancy + opioid",
		recommendation: "Coordinate with obstetrics; plan for neonatal opioid withdrawal monitoring and avoid abrupt discontinuation.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, p PatientContext) (Severity, string, bool) {
			if !isTrue(p.IsPregnant) || !r.hasOpioid() {
				return "", "", false
			}
			return SeverityModerate, fmt.Sprintf("%s during pregnancy carries a risk of neonatal opioid withdrawal syndrome.", list(r.opioids())), true
		},
	},
	{
		issue:          "Multiple opioids",
		recommendation: "Consolidate to a single long-acting opioid with one breakthrough agent where possible.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			if len(r.byIngredient) < 2 {
				return "", "", false
			}
			return SeverityModerate, fmt.Sprintf("%d distinct opioids are listed: %s.", len(r.byIngredient), list(r.opioids())), true
		},
	},
	{
		issue:          "High daily MME",
		recommendation: "Reassess benefits and risks, offer naloxone and avoid further escalation without documented justification.",
		references:     []Reference{refCDC2022},
		check: func(r *regimen, _ PatientContext) (Severity, string, bool) {
			total := r.mme.TotalMMEPerDay
			switch {
			case total >= highMMEThreshold:
				return SeverityMajor, fmt.Sprintf("Total daily dose is %.1f MME, at or above %d MME/day.", total, highMMEThreshold), true
			case total >= elevatedMMEThreshold:
				return SeverityModerate, fmt.Sprintf("Total daily dose is %.1f MME, at or above %d MME/day.", total, elevatedMMEThreshold), true
			}
			return "", "", false
		},
	},
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// list renders names as "a", "a and b" or "a, b and c".
func list(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
