// Package analysis accumulates streamed phase payloads into one result and
// derives the editable portion rows and totals shown for it.
package analysis

import (
	"maps"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/stream"
)

// MergeRecognize folds the dish recognition phase into r
func MergeRecognize(r *domain.AnalysisResult, p *stream.RecognizePayload) {
	if p == nil {
		return
	}
	if p.Dish != nil {
		r.Dish = p.Dish
	}
	if p.DishConfidence != nil {
		r.DishConfidence = p.DishConfidence
	}
	if p.IngredientsDetected != nil {
		r.IngredientsDetected = p.IngredientsDetected
	}
	mergeTimings(r, p.Timings)
}

// MergeIngQuant folds the ingredient quantity phase into r
func MergeIngQuant(r *domain.AnalysisResult, p *stream.IngQuantPayload) {
	if p == nil {
		return
	}
	if p.ItemsGrams != nil {
		r.ItemsGrams = p.ItemsGrams
	}
	if p.TotalGrams != nil {
		r.TotalGrams = p.TotalGrams
	}
	if p.GramsConfidence != nil {
		r.GramsConfidence = p.GramsConfidence
	}
	mergeNotes(r, p.Notes)
	mergeTimings(r, p.Timings)
}

// MergeCalories folds the calorie and macro phase into r
func MergeCalories(r *domain.AnalysisResult, p *stream.CaloriesPayload) {
	if p == nil {
		return
	}
	if p.ItemsNutrition != nil {
		r.ItemsNutrition = p.ItemsNutrition
	}
	if p.ItemsKcal != nil {
		r.ItemsKcal = p.ItemsKcal
	}
	if p.ItemsDensity != nil {
		r.ItemsDensity = p.ItemsDensity
	}
	if p.TotalKcal != nil {
		r.TotalKcal = p.TotalKcal
	}
	if p.TotalProteinG != nil {
		r.TotalProteinG = p.TotalProteinG
	}
	if p.TotalCarbsG != nil {
		r.TotalCarbsG = p.TotalCarbsG
	}
	if p.TotalFatG != nil {
		r.TotalFatG = p.TotalFatG
	}
	if p.KcalConfidence != nil {
		r.KcalConfidence = p.KcalConfidence
	}
	mergeNotes(r, p.Notes)
	mergeTimings(r, p.Timings)
}

// MergeDone overlays every field the final payload carries onto r.
// Fields the payload leaves out keep their streamed values.
func MergeDone(r *domain.AnalysisResult, d *domain.AnalysisResult) {
	if d == nil {
		return
	}
	if d.Dish != nil {
		r.Dish = d.Dish
	}
	if d.DishConfidence != nil {
		r.DishConfidence = d.DishConfidence
	}
	if d.IngredientsDetected != nil {
		r.IngredientsDetected = d.IngredientsDetected
	}
	if d.ItemsGrams != nil {
		r.ItemsGrams = d.ItemsGrams
	}
	if d.TotalGrams != nil {
		r.TotalGrams = d.TotalGrams
	}
	if d.GramsConfidence != nil {
		r.GramsConfidence = d.GramsConfidence
	}
	if d.ItemsNutrition != nil {
		r.ItemsNutrition = d.ItemsNutrition
	}
	if d.ItemsKcal != nil {
		r.ItemsKcal = d.ItemsKcal
	}
	if d.ItemsDensity != nil {
		r.ItemsDensity = d.ItemsDensity
	}
	if d.TotalKcal != nil {
		r.TotalKcal = d.TotalKcal
	}
	if d.TotalProteinG != nil {
		r.TotalProteinG = d.TotalProteinG
	}
	if d.TotalCarbsG != nil {
		r.TotalCarbsG = d.TotalCarbsG
	}
	if d.TotalFatG != nil {
		r.TotalFatG = d.TotalFatG
	}
	if d.KcalConfidence != nil {
		r.KcalConfidence = d.KcalConfidence
	}
	mergeNotes(r, d.Notes)
	if d.AnglesUsed != nil {
		r.AnglesUsed = d.AnglesUsed
	}
	if d.OverlayURL != nil {
		r.OverlayURL = d.OverlayURL
	}
	if d.ImageURL != nil {
		r.ImageURL = d.ImageURL
	}
	if d.TotalMS != nil {
		r.TotalMS = d.TotalMS
	}
	if d.HealthScore != nil {
		r.HealthScore = d.HealthScore
	}
	if d.Error != nil {
		r.Error = d.Error
	}
	if d.Msg != nil {
		r.Msg = d.Msg
	}
	mergeTimings(r, d.Timings)
}

// Empty notes never clobber earlier notes
func mergeNotes(r *domain.AnalysisResult, notes *string) {
	if notes != nil && *notes != "" {
		r.Notes = notes
	}
}

func mergeTimings(r *domain.AnalysisResult, t map[string]float64) {
	if len(t) == 0 {
		return
	}
	if r.Timings == nil {
		r.Timings = make(map[string]float64, len(t))
	}
	maps.Copy(r.Timings, t)
}
