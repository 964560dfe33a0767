package main

import (
	"errors"
	"testing"

	"github.com/pbaille/platelog/internal/analysis"
	"github.com/pbaille/platelog/internal/domain"
)

func TestParsePortions(t *testing.T) {
	edits, err := parsePortions([]string{"rice=150", " chicken breast = 120g "})
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 2 || edits[0] != (portionEdit{"rice", 150}) || edits[1] != (portionEdit{"chicken breast", 120}) {
		t.Errorf("edits = %+v", edits)
	}

	for _, bad := range []string{"rice", "=100", "rice=lots"} {
		if _, err := parsePortions([]string{bad}); err == nil {
			t.Errorf("parsePortions(%q): expected error", bad)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"line\nbreak", 20, "line break"},
		{"crème brûlée tart", 10, "crème b..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRowKcalFollowsPortionEdits(t *testing.T) {
	sess := analysis.NewSession()
	sess.ApplyResult(&domain.AnalysisResult{
		ItemsGrams:     []domain.ItemGrams{{Name: "rice", Grams: 200}, {Name: "egg", Grams: 50}},
		ItemsNutrition: []domain.ItemNutrition{{Name: "rice", Kcal: 260}, {Name: "egg", Kcal: 70}},
	})

	edits, err := parsePortions([]string{"Rice=300"})
	if err != nil {
		t.Fatal(err)
	}
	if err := applyPortions(sess, edits); err != nil {
		t.Fatal(err)
	}

	items := sess.Items()
	grams := sess.Portions().Grams()
	if got := rowKcal(items[0], grams[0]); got != 390 {
		t.Errorf("rice row = %v kcal, want 390", got)
	}

	var sum float64
	for i, it := range items {
		sum += rowKcal(it, grams[i])
	}
	if sum != sess.Totals().Kcal {
		t.Errorf("rows add up to %v, total is %v", sum, sess.Totals().Kcal)
	}

	if err := applyPortions(sess, []portionEdit{{"toast", 30}}); !errors.Is(err, analysis.ErrNoSuchItem) {
		t.Errorf("unknown row: err = %v", err)
	}
}

func TestCheckDate(t *testing.T) {
	if err := checkDate("2024-03-01"); err != nil {
		t.Errorf("valid date rejected: %v", err)
	}
	for _, bad := range []string{"tomorrow", "03/01/2024", "2024-13-01", ""} {
		if err := checkDate(bad); err == nil {
			t.Errorf("checkDate(%q): expected error", bad)
		}
	}
}

func TestHealthLine(t *testing.T) {
	if got := healthLine(6.54); got != "Health score: 6.5/10" {
		t.Errorf("healthLine = %q", got)
	}
}
