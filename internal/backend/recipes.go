package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pbaille/platelog/internal/domain"
)

// Search modes for QueryRecipes
const (
	ModeFlexible = "flexible"
	ModeStrict   = "strict"
)

func cleanIngredients(ingredients []string) []string {
	var out []string
	for _, ing := range ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			out = append(out, ing)
		}
	}
	return out
}

// QueryRecipes searches dishes that can be made from the given ingredients
func (c *Client) QueryRecipes(ctx context.Context, ingredients []string, top int, mode string) (*domain.RecipeQueryResponse, error) {
	ingredients = cleanIngredients(ingredients)
	if len(ingredients) == 0 {
		return nil, ErrNoIngredients
	}
	if mode != ModeStrict {
		mode = ModeFlexible
	}

	q := url.Values{}
	q.Set("i", strings.Join(ingredients, ","))
	if top > 0 {
		q.Set("top", strconv.Itoa(top))
	}
	q.Set("mode", mode)

	var resp domain.RecipeQueryResponse
	if err := c.getJSON(ctx, "/query", q, &resp); err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	for i := range resp.Hits {
		resp.Hits[i].ImageURL = c.Absolutize(resp.Hits[i].ImageURL)
	}
	return &resp, nil
}

// RecipeDetails fetches web sources for one dish
func (c *Client) RecipeDetails(ctx context.Context, dish string, ingredients []string) (*domain.RecipeDetails, error) {
	dish = strings.TrimSpace(dish)
	if dish == "" {
		return nil, fmt.Errorf("recipe details: dish name is required")
	}

	q := url.Values{}
	q.Set("dish_name", dish)
	if ing := cleanIngredients(ingredients); len(ing) > 0 {
		q.Set("ingredients", strings.Join(ing, ","))
	}

	var resp domain.RecipeDetails
	if err := c.getJSON(ctx, "/recipe_details", q, &resp); err != nil {
		return nil, fmt.Errorf("recipe details: %w", err)
	}
	return &resp, nil
}
