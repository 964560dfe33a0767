package domain

// RecipeHit is one dish returned by the recipe search
type RecipeHit struct {
	DishName       string   `json:"dish_name"`
	Ingredients    []string `json:"ingredients"`
	CookingMethod  string   `json:"cooking_method"`
	Cuisine        string   `json:"cuisine"`
	ImageURL       string   `json:"image_url"`
	SourceDatasets []string `json:"source_datasets"`
	ClusterID      string   `json:"cluster_id"`
	Score          float64  `json:"score"`
	Directions     []string `json:"directions"`
}

// RecipeInfo is structured recipe data extracted from a web source
type RecipeInfo struct {
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	CookTime     string   `json:"cook_time,omitempty"`
	PrepTime     string   `json:"prep_time,omitempty"`
	TotalTime    string   `json:"total_time,omitempty"`
}

// WebSource is a web page found for a dish
type WebSource struct {
	Title            string      `json:"title"`
	Link             string      `json:"link"`
	Snippet          string      `json:"snippet"`
	DisplayLink      string      `json:"displayLink"`
	Directions       []string    `json:"directions"`
	ContentPreview   string      `json:"content_preview"`
	ExtractionMethod string      `json:"extraction_method,omitempty"`
	RecipeInfo       *RecipeInfo `json:"recipe_info,omitempty"`
}

// RecipeQueryResponse is the /query response
type RecipeQueryResponse struct {
	QueryIngredients []string               `json:"query_ingredients"`
	Hits             []RecipeHit            `json:"hits"`
	Sources          map[string][]WebSource `json:"sources"`
}

// RecipeDetails is the /recipe_details response
type RecipeDetails struct {
	DishName    string      `json:"dish_name"`
	Ingredients []string    `json:"ingredients"`
	Sources     []WebSource `json:"sources"`
}
