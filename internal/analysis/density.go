package analysis

import (
	"math"
	"strings"

	"github.com/pbaille/platelog/internal/domain"
)

// UIItem is one editable ingredient row: a base portion, slider bounds, and
// the per-gram densities used to recompute totals as the portion changes.
type UIItem struct {
	Name        string  `json:"name"`
	BaseGrams   float64 `json:"baseGrams"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Step        float64 `json:"step"`
	KcalPerG    float64 `json:"kcalPerG"`
	ProteinPerG float64 `json:"proteinPerG"`
	CarbsPerG   float64 `json:"carbsPerG"`
	FatPerG     float64 `json:"fatPerG"`
	Note        string  `json:"note,omitempty"`

	// Values at the base portion
	ComputedKcal    float64 `json:"computedKcal"`
	ComputedProtein float64 `json:"computedProtein"`
	ComputedCarbs   float64 `json:"computedCarbs"`
	ComputedFat     float64 `json:"computedFat"`
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BuildUIItems joins grams, nutrition and density rows by normalized name and
// returns one row per grams entry, in order. When a name appears more than
// once in a lookup source, the first entry wins. Nutrition rows with no
// matching grams row are dropped.
func BuildUIItems(r *domain.AnalysisResult) []UIItem {
	if r == nil || len(r.ItemsGrams) == 0 {
		return nil
	}

	nutrition := make(map[string]domain.ItemNutrition, len(r.ItemsNutrition))
	for _, n := range r.ItemsNutrition {
		key := normalizeName(n.Name)
		if _, ok := nutrition[key]; !ok {
			nutrition[key] = n
		}
	}

	// Legacy calories-only rows fill in kcal for names without nutrition
	for _, k := range r.ItemsKcal {
		key := normalizeName(k.Name)
		if _, ok := nutrition[key]; !ok {
			nutrition[key] = domain.ItemNutrition{Name: k.Name, Kcal: k.Kcal, Method: k.Method}
		}
	}

	density := make(map[string]domain.ItemDensity, len(r.ItemsDensity))
	for _, d := range r.ItemsDensity {
		key := normalizeName(d.Name)
		if _, ok := density[key]; !ok {
			density[key] = d
		}
	}

	items := make([]UIItem, 0, len(r.ItemsGrams))
	for _, g := range r.ItemsGrams {
		key := normalizeName(g.Name)
		base := g.Grams

		var kcal, protein, carbs, fat float64
		if d, ok := density[key]; ok {
			kcal, protein, carbs, fat = d.KcalPerG, d.ProteinPerG, d.CarbsPerG, d.FatPerG
		} else if n, ok := nutrition[key]; ok && base > 0 {
			kcal = n.Kcal / base
			protein = n.ProteinG / base
			carbs = n.CarbsG / base
			fat = n.FatG / base
		}

		minG, maxG := sliderBounds(base)
		items = append(items, UIItem{
			Name:            g.Name,
			BaseGrams:       base,
			Min:             minG,
			Max:             maxG,
			Step:            1,
			KcalPerG:        kcal,
			ProteinPerG:     protein,
			CarbsPerG:       carbs,
			FatPerG:         fat,
			Note:            g.Note,
			ComputedKcal:    kcal * base,
			ComputedProtein: protein * base,
			ComputedCarbs:   carbs * base,
			ComputedFat:     fat * base,
		})
	}
	return items
}

// sliderBounds returns [max(0, floor(base*0.2)), max(20, ceil(base*2.2))],
// with the factors applied as integer ratios: 200 g gives [40, 440].
func sliderBounds(base float64) (float64, float64) {
	lo := math.Max(0, math.Floor(base*2/10))
	hi := math.Max(20, math.Ceil(base*22/10))
	return lo, hi
}

// gramsKeys lists the normalized names of the grams entries
func gramsKeys(grams []domain.ItemGrams) []string {
	keys := make([]string, len(grams))
	for i, g := range grams {
		keys[i] = normalizeName(g.Name)
	}
	return keys
}
