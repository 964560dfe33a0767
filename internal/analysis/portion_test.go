package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/pbaille/platelog/internal/domain"
)

func mealItems() []UIItem {
	return BuildUIItems(&domain.AnalysisResult{
		ItemsGrams: []domain.ItemGrams{
			{Name: "rice", Grams: 200},
			{Name: "chicken", Grams: 120},
			{Name: "broccoli", Grams: 80},
		},
		ItemsNutrition: []domain.ItemNutrition{
			{Name: "rice", Kcal: 260, ProteinG: 5, CarbsG: 56, FatG: 1},
			{Name: "chicken", Kcal: 198, ProteinG: 37.2, CarbsG: 0, FatG: 4.3},
			{Name: "broccoli", Kcal: 27, ProteinG: 2.2, CarbsG: 5.3, FatG: 0.3},
		},
	})
}

func TestComputeTotalsAtBase(t *testing.T) {
	items := mealItems()
	base := make([]float64, len(items))
	var g, kcal, protein, carbs, fat float64
	for i, it := range items {
		base[i] = it.BaseGrams
		g += it.BaseGrams
		kcal += it.ComputedKcal
		protein += it.ComputedProtein
		carbs += it.ComputedCarbs
		fat += it.ComputedFat
	}

	got := ComputeTotals(items, base)
	want := UITotals{
		Grams:   math.Round(g),
		Kcal:    math.Round(kcal),
		Protein: math.Round(protein*10) / 10,
		Carbs:   math.Round(carbs*10) / 10,
		Fat:     math.Round(fat*10) / 10,
	}
	if got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
	if got.Grams != 400 || got.Kcal != 485 || got.Protein != 44.4 {
		t.Errorf("unexpected base totals %+v", got)
	}

	if short := ComputeTotals(items, base[:1]); short != got {
		t.Errorf("short grams vector should fall back to base: %+v", short)
	}
}

func TestPortionStateClamp(t *testing.T) {
	p := NewPortionState(mealItems())

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below min", 1, 40},
		{"negative", -50, 40},
		{"above max", 10000, 440},
		{"in range", 250, 250},
		{"at max", 440, 440},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Set(0, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || p.Grams()[0] != tt.want {
				t.Errorf("stored %v, want %v", p.Grams()[0], tt.want)
			}
		})
	}

	if _, err := p.Set(0, math.NaN()); !errors.Is(err, ErrInvalidGrams) {
		t.Errorf("NaN = %v", err)
	}
	if _, err := p.Set(9, 100); !errors.Is(err, ErrNoSuchItem) {
		t.Errorf("out of range = %v", err)
	}
}

func TestPortionStateTotalsFollowEdits(t *testing.T) {
	p := NewPortionState(mealItems())
	before := p.Totals()

	if _, err := p.Set(0, 400); err != nil {
		t.Fatal(err)
	}
	after := p.Totals()
	if after.Grams != before.Grams+200 || after.Kcal != before.Kcal+260 {
		t.Errorf("doubling rice: before %+v after %+v", before, after)
	}

	if err := p.Reset(0); err != nil {
		t.Fatal(err)
	}
	if p.Totals() != before {
		t.Errorf("reset totals = %+v, want %+v", p.Totals(), before)
	}
}

func TestPortionStateRenameAndIndex(t *testing.T) {
	p := NewPortionState(mealItems())
	if i := p.Index(" Chicken "); i != 1 {
		t.Fatalf("Index = %d", i)
	}
	if err := p.Rename(1, "grilled chicken"); err != nil {
		t.Fatal(err)
	}
	if p.Items()[1].Name != "grilled chicken" || p.Index("chicken") != -1 {
		t.Errorf("rename not applied")
	}
	if p.Items()[1].KcalPerG == 0 {
		t.Error("rename should not touch densities")
	}
}
