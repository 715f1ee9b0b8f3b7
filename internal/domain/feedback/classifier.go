package feedback

import (
	"math"
	"regexp"
	"strings"
)

// Classifier reads feedback text against fixed keyword tables. It holds no
// state after construction and is safe for concurrent use.
type Classifier struct {
	types      []typePattern
	categories []categoryPattern
	critical   *regexp.Regexp
	high       *regexp.Regexp
	low        *regexp.Regexp
}

type typePattern struct {
	typ   Type
	regex *regexp.Regexp
}

type categoryPattern struct {
	category Category
	regex    *regexp.Regexp
}

func NewClassifier() *Classifier {
	c := &Classifier{}
	c.compilePatterns()
	return c
}

func (c *Classifier) compilePatterns() {
	c.types = []typePattern{
		{TypeBug, regexp.MustCompile(`(?i)\b(bug|error|crash(es|ed)?|broken|fails?|failed|failing|doesn'?t work|does not work|not working|exception|freez(e|es|ing)|glitch|wrong|incorrect|blank (page|screen)|500)\b`)},
		{TypeFeatureRequest, regexp.MustCompile(`(?i)\b(feature|would be (nice|great|helpful)|please add|add (a|an|support)|wish|could you|suggest(ion)?|request|integrat(e|ion)|ability to|allow (me|us|users) to|support for)\b`)},
		{TypeQuestion, regexp.MustCompile(`(?i)(\?\s*$|\b(how (do|can|to)|what is|where (is|can)|why (is|does)|is there|can i|does it)\b)`)},
		{TypePraise, regexp.MustCompile(`(?i)\b(love|great job|awesome|excellent|thank(s| you)|amazing|helpful|fantastic|well done|works great)\b`)},
		{TypeComplaint, regexp.MustCompile(`(?i)\b(frustrat(ed|ing)|annoy(ed|ing)|terrible|awful|hate|useless|unacceptable|disappoint(ed|ing)|too (slow|complicated|hard)|confusing)\b`)},
	}

	c.categories = []categoryPattern{
		{CategoryMedication, regexp.MustCompile(`(?i)\b(medication|drug|dose|dosing|opioid|opiate|mme|morphine|oxycodone|fentanyl|prescription|naloxone|interaction)s?\b`)},
		{CategoryClinicalContent, regexp.MustCompile(`(?i)\b(guideline|clinical|diagnos(is|es)|stage|staging|tumou?r|cancer|trial|protocol|evidence|reference|recommendation)s?\b`)},
		{CategoryAuthentication, regexp.MustCompile(`(?i)\b(log ?in|log ?out|sign ?in|password|session|auth(entication)?|token|permission|access denied|locked out|sso)\b`)},
		{CategoryPerformance, regexp.MustCompile(`(?i)\b(slow|lag(gy)?|latency|timeout|timed out|loading|performance|hang(s|ing)?|takes forever)\b`)},
		{CategoryData, regexp.MustCompile(`(?i)\b(data|record|export|import|sync|missing|duplicate|saved?|lost|delete[ds]?|chart)s?\b`)},
		{CategoryUI, regexp.MustCompile(`(?i)\b(button|layout|screen|page|display|font|color|colour|dark mode|mobile|menu|modal|typo|design|ui|ux)s?\b`)},
	}

	c.critical = regexp.MustCompile(`(?i)\b(patient safety|unsafe|overdose|wrong (dose|patient|medication|drug)|incorrect (dose|dosage|mme)|data loss|lost (all|my|the) data|deleted (records?|data)|security|breach|phi|hipaa|leak(ed)?|harm)\b`)
	c.high = regexp.MustCompile(`(?i)\b(crash(es|ed)?|cannot|can'?t (log ?in|access|save|open)|unable to|outage|down|blocked|urgent|asap|data missing|not working|does not work|doesn'?t work)\b`)
	c.low = regexp.MustCompile(`(?i)\b(typo|cosmetic|minor|small|nitpick|spelling|alignment)\b`)
}

// Classify assigns type, priority, category, labels and a confidence in
// [0, 1]. Ties go to the pattern listed first.
func (c *Classifier) Classify(message string) Classification {
	msg := strings.TrimSpace(message)

	typ, typeScore, runnerUp := TypeOther, 0, 0
	for _, p := range c.types {
		n := len(p.regex.FindAllStringIndex(msg, -1))
		switch {
		case n > typeScore:
			runnerUp = typeScore
			typ, typeScore = p.typ, n
		case n > runnerUp:
			runnerUp = n
		}
	}

	category, categoryScore := CategoryOther, 0
	for _, p := range c.categories {
		if n := len(p.regex.FindAllStringIndex(msg, -1)); n > categoryScore {
			category, categoryScore = p.category, n
		}
	}

	priority := c.priorityFor(msg, typ)

	return Classification{
		Type:       typ,
		Priority:   priority,
		Category:   category,
		Labels:     labelsFor(typ, priority, category),
		Confidence: confidence(typeScore, runnerUp, categoryScore),
	}
}

func (c *Classifier) priorityFor(msg string, typ Type) Priority {
	switch {
	case c.critical.MatchString(msg):
		return PriorityCritical
	case c.high.MatchString(msg) && (typ == TypeBug || typ == TypeComplaint || typ == TypeOther):
		return PriorityHigh
	case c.low.MatchString(msg), typ == TypePraise, typ == TypeQuestion:
		return PriorityLow
	case typ == TypeFeatureRequest:
		return PriorityLow
	}
	return PriorityMedium
}

func labelsFor(typ Type, priority Priority, category Category) []string {
	labels := make([]string, 0, 4)
	switch typ {
	case TypeBug:
		labels = append(labels, "bug")
	case TypeFeatureRequest:
		labels = append(labels, "enhancement")
	case TypeQuestion:
		labels = append(labels, "question")
	default:
		labels = append(labels, "feedback:"+string(typ))
	}
	labels = append(labels, "priority:"+string(priority))
	if category != CategoryOther {
		labels = append(labels, "area:"+string(category))
	}
	if priority == PriorityCritical {
		labels = append(labels, "needs-triage")
	}
	return labels
}

func confidence(typeScore, runnerUp, categoryScore int) float64 {
	if typeScore == 0 {
		if categoryScore > 0 {
			return 0.4
		}
		return 0.3
	}
	c := 0.5 + 0.1*float64(typeScore)
	if categoryScore > 0 {
		c += 0.1
	}
	if runnerUp == typeScore {
		c -= 0.2
	} else if runnerUp > 0 {
		c -= 0.1
	}
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}
