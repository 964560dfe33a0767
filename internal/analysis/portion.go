package analysis

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoSuchItem   = errors.New("no such item")
	ErrInvalidGrams = errors.New("invalid grams")
)

// UITotals are the aggregate values for the current portions. Grams and kcal
// are whole numbers, macros carry one decimal.
type UITotals struct {
	Grams   float64 `json:"grams"`
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// ComputeTotals sums density × grams over every row in one pass.
// Rows without a grams value use their base portion.
func ComputeTotals(items []UIItem, grams []float64) UITotals {
	var g, kcal, protein, carbs, fat float64
	for i, it := range items {
		v := it.BaseGrams
		if i < len(grams) {
			v = grams[i]
		}
		g += v
		kcal += it.KcalPerG * v
		protein += it.ProteinPerG * v
		carbs += it.CarbsPerG * v
		fat += it.FatPerG * v
	}
	return UITotals{
		Grams:   math.Round(g),
		Kcal:    math.Round(kcal),
		Protein: round1(protein),
		Carbs:   round1(carbs),
		Fat:     round1(fat),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// PortionState holds the user's chosen grams for each row and the totals
// derived from them.
type PortionState struct {
	items  []UIItem
	grams  []float64
	totals UITotals
}

func NewPortionState(items []UIItem) *PortionState {
	p := &PortionState{
		items: items,
		grams: make([]float64, len(items)),
	}
	for i, it := range items {
		p.grams[i] = it.BaseGrams
	}
	p.totals = ComputeTotals(p.items, p.grams)
	return p
}

// Set clamps g into the row's slider bounds, stores it and recomputes the
// totals. It returns the value actually stored.
func (p *PortionState) Set(i int, g float64) (float64, error) {
	if i < 0 || i >= len(p.items) {
		return 0, fmt.Errorf("set portion %d: %w", i, ErrNoSuchItem)
	}
	if math.IsNaN(g) {
		return 0, fmt.Errorf("set portion %d: %w", i, ErrInvalidGrams)
	}
	it := p.items[i]
	g = math.Min(math.Max(g, it.Min), it.Max)
	p.grams[i] = g
	p.totals = ComputeTotals(p.items, p.grams)
	return g, nil
}

// Reset restores a row to its base portion
func (p *PortionState) Reset(i int) error {
	if i < 0 || i >= len(p.items) {
		return fmt.Errorf("reset portion %d: %w", i, ErrNoSuchItem)
	}
	p.grams[i] = p.items[i].BaseGrams
	p.totals = ComputeTotals(p.items, p.grams)
	return nil
}

// Rename changes a row's display name. Nothing else about the row moves.
func (p *PortionState) Rename(i int, name string) error {
	if i < 0 || i >= len(p.items) {
		return fmt.Errorf("rename item %d: %w", i, ErrNoSuchItem)
	}
	p.items[i].Name = name
	return nil
}

// Index finds a row by case-insensitive name, or returns -1
func (p *PortionState) Index(name string) int {
	key := normalizeName(name)
	for i, it := range p.items {
		if normalizeName(it.Name) == key {
			return i
		}
	}
	return -1
}

func (p *PortionState) Items() []UIItem {
	return append([]UIItem(nil), p.items...)
}

func (p *PortionState) Grams() []float64 {
	return append([]float64(nil), p.grams...)
}

func (p *PortionState) Totals() UITotals {
	return p.totals
}

func (p *PortionState) Len() int {
	return len(p.items)
}
