package pain

import (
	"regexp"
	"sort"
	"strings"
)

const (
	Buprenorphine = "buprenorphine"
	Codeine       = "codeine"
	Fentanyl      = "fentanyl"
	Hydrocodone   = "hydrocodone"
	Hydromorphone = "hydromorphone"
	Levorphanol   = "levorphanol"
	Meperidine    = "meperidine"
	Methadone     = "methadone"
	Morphine      = "morphine"
	Oxycodone     = "oxycodone"
	Oxymorphone   = "oxymorphone"
	Tapentadol    = "tapentadol"
	Tramadol      = "tramadol"
)

// brandAliases maps brand names to their opioid ingredient.
var brandAliases = map[string]string{
	"oxycontin":  Oxycodone,
	"percocet":   Oxycodone,
	"roxicodone": Oxycodone,
	"norco":      Hydrocodone,
	"vicodin":    Hydrocodone,
	"lortab":     Hydrocodone,
	"dilaudid":   Hydromorphone,
	"exalgo":     Hydromorphone,
	"duragesic":  Fentanyl,
	"actiq":      Fentanyl,
	"fentora":    Fentanyl,
	"ms contin":  Morphine,
	"kadian":     Morphine,
	"nucynta":    Tapentadol,
	"ultram":     Tramadol,
	"opana":      Oxymorphone,
	"demerol":    Meperidine,
	"dolophine":  Methadone,
	"methadose":  Methadone,
	"butrans":    Buprenorphine,
	"belbuca":    Buprenorphine,
	"suboxone":   Buprenorphine,
	"subutex":    Buprenorphine,
	"tylenol #3": Codeine,
}

// CDC 2022 conversion factors. Fentanyl factors outside transdermal are per mcg.
var conversionFactors = map[string]map[Route]float64{
	Codeine:       {RouteOral: 0.15},
	Hydrocodone:   {RouteOral: 1},
	Hydromorphone: {RouteOral: 5, RouteIV: 20, RouteIM: 20},
	Levorphanol:   {RouteOral: 11},
	Meperidine:    {RouteOral: 0.1, RouteIV: 0.4, RouteIM: 0.4},
	Methadone:     {RouteOral: 4.7},
	Morphine:      {RouteOral: 1, RouteIV: 3, RouteIM: 3},
	Oxycodone:     {RouteOral: 1.5},
	Oxymorphone:   {RouteOral: 3},
	Tapentadol:    {RouteOral: 0.4},
	Tramadol:      {RouteOral: 0.2},
	Fentanyl: {
		RouteIV:          0.3,
		RouteIM:          0.3,
		RouteBuccal:      0.13,
		RouteSublingual:  0.13,
		RouteTransdermal: transdermalFentanylFactor,
	},
	// Listed so suggestions report its routes; always excluded from totals.
	Buprenorphine: {RouteSublingual: 0, RouteBuccal: 0, RouteTransdermal: 0},
}

const transdermalFentanylFactor = 2.4

// Daily MME for standard fentanyl patch strengths, keyed by mcg/hr.
var fentanylPatchMME = map[float64]float64{
	12:   28.8,
	25:   60,
	37.5: 90,
	50:   120,
	62.5: 150,
	75:   180,
	87.5: 210,
	100:  240,
}

type ingredientPattern struct {
	re         *regexp.Regexp
	ingredient string
	alias      string
}

// ingredientPatterns is ordered longest alias first so "ms contin" wins
// over any shorter match, and brand names are tried before generics.
var ingredientPatterns = buildIngredientPatterns()

func buildIngredientPatterns() []ingredientPattern {
	var names []string
	for alias := range brandAliases {
		names = append(names, alias)
	}
	for ing := range conversionFactors {
		names = append(names, ing)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	out := make([]ingredientPattern, 0, len(names))
	for _, n := range names {
		ing, ok := brandAliases[n]
		if !ok {
			ing = n
		}
		words := strings.Fields(n)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		// \b does not anchor after '#', so the trailing boundary is explicit.
		expr := `(?i)(^|[^a-z0-9])` + strings.Join(words, `\s*`) + `($|[^a-z0-9])`
		out = append(out, ingredientPattern{re: regexp.MustCompile(expr), ingredient: ing, alias: n})
	}
	return out
}

// ResolveIngredient maps a medication name (generic, brand, or a free-text
// product line such as "Oxycodone ER 10 mg") to its opioid ingredient.
// It returns "" when the name is not a known opioid.
func ResolveIngredient(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, p := range ingredientPatterns {
		if p.re.MatchString(name) {
			return p.ingredient
		}
	}
	return ""
}

// Suggestion is one autocomplete hit for the regimen editor.
type Suggestion struct {
	Name       string  `json:"name"`
	Ingredient string  `json:"ingredient"`
	Routes     []Route `json:"routes"`
}

// Suggest returns known opioid names and aliases starting with q.
func Suggest(q string, limit int) []Suggestion {
	q = strings.ToLower(strings.TrimSpace(q))
	out := []Suggestion{}
	for _, p := range ingredientPatterns {
		if !strings.HasPrefix(p.alias, q) {
			continue
		}
		out = append(out, Suggestion{Name: p.alias, Ingredient: p.ingredient, Routes: routesFor(p.ingredient)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var routeOrder = []Route{RouteOral, RouteTransdermal, RouteSublingual, RouteBuccal, RouteIV, RouteIM}

func routesFor(ingredient string) []Route {
	var routes []Route
	for _, r := range routeOrder {
		if _, ok := conversionFactors[ingredient][r]; ok {
			routes = append(routes, r)
		}
	}
	return routes
}
