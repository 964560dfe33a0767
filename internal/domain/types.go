package domain

import "time"

// ItemGrams is the estimated portion of one detected ingredient
type ItemGrams struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
	Note  string  `json:"note,omitempty"`
}

// ItemNutrition is the nutrition estimate for one ingredient portion
type ItemNutrition struct {
	Name     string  `json:"name"`
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	Method   string  `json:"method,omitempty"`
}

// ItemKcal is the legacy calories-only row some backends still send
type ItemKcal struct {
	Name   string  `json:"name"`
	Kcal   float64 `json:"kcal"`
	Method string  `json:"method,omitempty"`
}

// ItemDensity is a backend-supplied per-gram nutrient density
type ItemDensity struct {
	Name        string  `json:"name"`
	KcalPerG    float64 `json:"kcal_per_g"`
	ProteinPerG float64 `json:"protein_per_g"`
	CarbsPerG   float64 `json:"carbs_per_g"`
	FatPerG     float64 `json:"fat_per_g"`
}

// AnalysisResult accumulates everything known about one analysis run.
// Nil pointers and nil slices mean "not supplied yet".
type AnalysisResult struct {
	Dish                *string            `json:"dish,omitempty"`
	DishConfidence      *float64           `json:"dish_confidence,omitempty"`
	IngredientsDetected []string           `json:"ingredients_detected,omitempty"`
	ItemsGrams          []ItemGrams        `json:"items_grams,omitempty"`
	TotalGrams          *float64           `json:"total_grams,omitempty"`
	GramsConfidence     *float64           `json:"grams_confidence,omitempty"`
	ItemsNutrition      []ItemNutrition    `json:"items_nutrition,omitempty"`
	ItemsKcal           []ItemKcal         `json:"items_kcal,omitempty"`
	ItemsDensity        []ItemDensity      `json:"items_density,omitempty"`
	TotalKcal           *float64           `json:"total_kcal,omitempty"`
	TotalProteinG       *float64           `json:"total_protein_g,omitempty"`
	TotalCarbsG         *float64           `json:"total_carbs_g,omitempty"`
	TotalFatG           *float64           `json:"total_fat_g,omitempty"`
	KcalConfidence      *float64           `json:"kcal_confidence,omitempty"`
	Notes               *string            `json:"notes,omitempty"`
	AnglesUsed          *int               `json:"angles_used,omitempty"`
	OverlayURL          *string            `json:"overlay_url,omitempty"`
	ImageURL            *string            `json:"image_url,omitempty"`
	Timings             map[string]float64 `json:"timings,omitempty"`
	TotalMS             *float64           `json:"total_ms,omitempty"`
	HealthScore         *HealthScoreOutput `json:"health_score,omitempty"`
	Error               *string            `json:"error,omitempty"`
	Msg                 *string            `json:"msg,omitempty"`
}

// HealthScoreItem is the trimmed ingredient row the health-score endpoint takes
type HealthScoreItem struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
}

// HealthScoreInput is the nutritional snapshot sent to the health-score endpoint
type HealthScoreInput struct {
	TotalKcal           float64           `json:"total_kcal"`
	TotalGrams          float64           `json:"total_grams"`
	TotalFatG           float64           `json:"total_fat_g"`
	TotalProteinG       float64           `json:"total_protein_g"`
	ItemsGrams          []HealthScoreItem `json:"items_grams"`
	KcalConfidence      float64           `json:"kcal_confidence"`
	UseConfidenceDampen bool              `json:"use_confidence_dampen"`
}

// ComponentScores breaks the health score down by factor
type ComponentScores struct {
	EnergyDensity  float64 `json:"energy_density"`
	ProteinDensity float64 `json:"protein_density"`
	FatBalance     float64 `json:"fat_balance"`
	CarbQuality    float64 `json:"carb_quality"`
	SodiumProxy    float64 `json:"sodium_proxy"`
	WholeFoods     float64 `json:"whole_foods"`
}

// Classification is one ingredient category assigned by the scorer
type Classification struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// HealthScoreOutput is the health-score endpoint response (1..10 scale)
type HealthScoreOutput struct {
	HealthScore     float64            `json:"health_score"`
	ComponentScores ComponentScores    `json:"component_scores"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	DriversPositive []string           `json:"drivers_positive,omitempty"`
	DriversNegative []string           `json:"drivers_negative,omitempty"`
	Debug           map[string]float64 `json:"debug,omitempty"`
	Classification  []Classification   `json:"classification,omitempty"`
}

// LoggedMeal is one finalized analysis in the personal meal log
type LoggedMeal struct {
	ID                  string             `json:"id"`
	Date                string             `json:"date"` // YYYY-MM-DD, local calendar date
	Timestamp           time.Time          `json:"timestamp"`
	Dish                string             `json:"dish,omitempty"`
	DishConfidence      float64            `json:"dish_confidence"`
	IngredientsDetected []string           `json:"ingredients_detected"`
	ItemsGrams          []ItemGrams        `json:"items_grams"`
	TotalGrams          float64            `json:"total_grams"`
	GramsConfidence     float64            `json:"grams_confidence"`
	ItemsNutrition      []ItemNutrition    `json:"items_nutrition"`
	TotalKcal           float64            `json:"total_kcal"`
	TotalProteinG       float64            `json:"total_protein_g"`
	TotalCarbsG         float64            `json:"total_carbs_g"`
	TotalFatG           float64            `json:"total_fat_g"`
	KcalConfidence      float64            `json:"kcal_confidence"`
	Notes               string             `json:"notes,omitempty"`
	AnalysisMode        string             `json:"analysis_mode"`
	ServiceUsed         string             `json:"service_used"`
	ImageURL            string             `json:"image_url,omitempty"`
	OverlayURL          string             `json:"overlay_url,omitempty"`
	HealthScore         *HealthScoreOutput `json:"health_score,omitempty"`
}

// MealPatch replaces whole fields of a LoggedMeal; nil fields are left alone
type MealPatch struct {
	Dish                *string            `json:"dish,omitempty"`
	IngredientsDetected []string           `json:"ingredients_detected,omitempty"`
	ItemsGrams          []ItemGrams        `json:"items_grams,omitempty"`
	ItemsNutrition      []ItemNutrition    `json:"items_nutrition,omitempty"`
	TotalGrams          *float64           `json:"total_grams,omitempty"`
	TotalKcal           *float64           `json:"total_kcal,omitempty"`
	TotalProteinG       *float64           `json:"total_protein_g,omitempty"`
	TotalCarbsG         *float64           `json:"total_carbs_g,omitempty"`
	TotalFatG           *float64           `json:"total_fat_g,omitempty"`
	Notes               *string            `json:"notes,omitempty"`
	ImageURL            *string            `json:"image_url,omitempty"`
	OverlayURL          *string            `json:"overlay_url,omitempty"`
	HealthScore         *HealthScoreOutput `json:"health_score,omitempty"`
}

// DailyTotals sums a day's logged meals
type DailyTotals struct {
	TotalKcal     float64 `json:"total_kcal"`
	TotalProteinG float64 `json:"total_protein_g"`
	TotalCarbsG   float64 `json:"total_carbs_g"`
	TotalFatG     float64 `json:"total_fat_g"`
	TotalGrams    float64 `json:"total_grams"`
}

// DailyMealLog is the derived per-day view of the meal log
type DailyMealLog struct {
	Date        string       `json:"date"`
	Meals       []LoggedMeal `json:"meals"`
	DailyTotals DailyTotals  `json:"dailyTotals"`
}

// HistoryItem is one server-side analysis summary from /history
type HistoryItem struct {
	ID             string   `json:"id"`
	Dish           *string  `json:"dish"`
	DishConfidence *float64 `json:"dish_confidence"`
	TotalKcal      *float64 `json:"total_kcal"`
	TotalProteinG  *float64 `json:"total_protein_g"`
	TotalCarbsG    *float64 `json:"total_carbs_g"`
	TotalFatG      *float64 `json:"total_fat_g"`
	CreatedAt      string   `json:"created_at"`
	TotalMS        *float64 `json:"total_ms"`
}
