package stream

import (
	"github.com/pbaille/platelog/internal/domain"
)

// Phase names the backend pipeline stage an event belongs to
type Phase string

const (
	PhaseRecognize Phase = "recognize"
	PhaseIngQuant  Phase = "ing_quant"
	PhaseCalories  Phase = "calories"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// RecognizePayload is the dish recognition slice of a result
type RecognizePayload struct {
	Dish                *string            `json:"dish"`
	DishConfidence      *float64           `json:"dish_confidence"`
	IngredientsDetected []string           `json:"ingredients_detected"`
	Timings             map[string]float64 `json:"timings"`
}

// IngQuantPayload is the ingredient quantity slice of a result
type IngQuantPayload struct {
	ItemsGrams      []domain.ItemGrams `json:"items_grams"`
	TotalGrams      *float64           `json:"total_grams"`
	GramsConfidence *float64           `json:"grams_confidence"`
	Notes           *string            `json:"notes"`
	Timings         map[string]float64 `json:"timings"`
}

// CaloriesPayload is the calorie and macro slice of a result
type CaloriesPayload struct {
	ItemsNutrition []domain.ItemNutrition `json:"items_nutrition"`
	ItemsKcal      []domain.ItemKcal      `json:"items_kcal"`
	ItemsDensity   []domain.ItemDensity   `json:"items_density"`
	TotalKcal      *float64               `json:"total_kcal"`
	TotalProteinG  *float64               `json:"total_protein_g"`
	TotalCarbsG    *float64               `json:"total_carbs_g"`
	TotalFatG      *float64               `json:"total_fat_g"`
	KcalConfidence *float64               `json:"kcal_confidence"`
	Notes          *string                `json:"notes"`
	Timings        map[string]float64     `json:"timings"`
}

// ErrorPayload is what the backend sends when a stage fails
type ErrorPayload struct {
	Stage string `json:"stage,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Error string `json:"error,omitempty"`
}

// Message returns the most specific human-readable text in the payload
func (p ErrorPayload) Message() string {
	switch {
	case p.Msg != "":
		return p.Msg
	case p.Error != "":
		return p.Error
	default:
		return "Streaming error"
	}
}

// Event is one decoded phase event. Exactly one payload field is set,
// matching Phase.
type Event struct {
	Phase     Phase
	Recognize *RecognizePayload
	IngQuant  *IngQuantPayload
	Calories  *CaloriesPayload
	Done      *domain.AnalysisResult
	Error     *ErrorPayload
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	return e.Phase == PhaseDone || e.Phase == PhaseError
}
