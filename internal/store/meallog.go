package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/platelog/internal/domain"
)

// StorageKey is where the whole ledger lives in the KV
const StorageKey = "food_analyzer_meals"

const dateLayout = "2006-01-02"

var ErrMealNotFound = errors.New("meal not found")

// MealLog is the personal ledger of analysed meals. It is loaded once from
// the KV and written back in full after every change. Safe for concurrent use.
type MealLog struct {
	kv KV

	mu      sync.Mutex
	meals   []domain.LoggedMeal
	subs    map[int]func()
	nextSub int

	now   func() time.Time
	newID func() string
	loc   *time.Location
}

type Option func(*MealLog)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *MealLog) {
		l.now = now
	}
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(newID func() string) Option {
	return func(l *MealLog) {
		l.newID = newID
	}
}

// WithLocation sets the time zone calendar dates are taken in
func WithLocation(loc *time.Location) Option {
	return func(l *MealLog) {
		l.loc = loc
	}
}

// NewMealLog loads the ledger from kv. Missing or unreadable data starts an
// empty ledger.
func NewMealLog(kv KV, opts ...Option) *MealLog {
	l := &MealLog{
		kv:    kv,
		subs:  make(map[int]func()),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.load()
	return l
}

func (l *MealLog) load() {
	raw, ok, err := l.kv.Get(StorageKey)
	if err != nil {
		log.Printf("[store] load meal log: %v", err)
		return
	}
	if !ok || len(raw) == 0 {
		return
	}

	var meals []domain.LoggedMeal
	if err := json.Unmarshal(raw, &meals); err != nil {
		log.Printf("[store] discarding unreadable meal log: %v", err)
		return
	}
	l.meals = meals
}

// persistLocked writes the ledger. Callers hold l.mu.
func (l *MealLog) persistLocked() error {
	data, err := json.Marshal(orEmpty(l.meals))
	if err != nil {
		return fmt.Errorf("marshal meal log: %w", err)
	}
	if err := l.kv.Set(StorageKey, data); err != nil {
		log.Printf("[store] persist meal log: %v", err)
		return fmt.Errorf("persist meal log: %w", err)
	}
	return nil
}

// commitLocked persists, releases the lock and notifies subscribers.
// In-memory changes stand even when the write fails.
func (l *MealLog) commitLocked() error {
	err := l.persistLocked()
	subs := make([]func(), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		notify(fn)
	}
	return err
}

func notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[store] subscriber panicked: %v", r)
		}
	}()
	fn()
}

// Subscribe registers fn to run after every change. The returned func
// removes it.
func (l *MealLog) Subscribe(fn func()) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

func (l *MealLog) today() string {
	return l.now().In(l.loc).Format(dateLayout)
}

// newestFirst sorts by timestamp descending, keeping ledger order for ties
func newestFirst(meals []domain.LoggedMeal) []domain.LoggedMeal {
	slices.SortStableFunc(meals, func(a, b domain.LoggedMeal) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return meals
}

func (l *MealLog) filter(keep func(*domain.LoggedMeal) bool) []domain.LoggedMeal {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []domain.LoggedMeal{}
	for i := range l.meals {
		if keep(&l.meals[i]) {
			out = append(out, l.meals[i])
		}
	}
	return out
}

// GetAll returns every meal, newest first
func (l *MealLog) GetAll() []domain.LoggedMeal {
	return newestFirst(l.filter(func(*domain.LoggedMeal) bool { return true }))
}

// GetMealsForDate returns the meals logged on date (YYYY-MM-DD), newest first
func (l *MealLog) GetMealsForDate(date string) []domain.LoggedMeal {
	return newestFirst(l.filter(func(m *domain.LoggedMeal) bool { return m.Date == date }))
}

func (l *MealLog) GetTodaysMeals() []domain.LoggedMeal {
	return l.GetMealsForDate(l.today())
}

// GetDailyMealLog returns date's meals with their summed totals
func (l *MealLog) GetDailyMealLog(date string) domain.DailyMealLog {
	meals := l.GetMealsForDate(date)
	return domain.DailyMealLog{
		Date:        date,
		Meals:       meals,
		DailyTotals: sumTotals(meals),
	}
}

func (l *MealLog) GetTodaysMealLog() domain.DailyMealLog {
	return l.GetDailyMealLog(l.today())
}

// GetMealsInDateRange returns meals dated between start and end inclusive,
// in ledger order
func (l *MealLog) GetMealsInDateRange(start, end string) []domain.LoggedMeal {
	return l.filter(func(m *domain.LoggedMeal) bool { return m.Date >= start && m.Date <= end })
}

// GetAllMealDates lists each date with at least one meal, latest first
func (l *MealLog) GetAllMealDates() []string {
	l.mu.Lock()
	seen := make(map[string]struct{}, len(l.meals))
	dates := []string{}
	for _, m := range l.meals {
		if _, ok := seen[m.Date]; !ok {
			seen[m.Date] = struct{}{}
			dates = append(dates, m.Date)
		}
	}
	l.mu.Unlock()

	slices.Sort(dates)
	slices.Reverse(dates)
	return dates
}

// SearchMeals matches query case-insensitively against dish names and
// detected ingredients. A blank query matches nothing.
func (l *MealLog) SearchMeals(query string) []domain.LoggedMeal {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.LoggedMeal{}
	}
	return l.filter(func(m *domain.LoggedMeal) bool {
		if strings.Contains(strings.ToLower(m.Dish), q) {
			return true
		}
		for _, ing := range m.IngredientsDetected {
			if strings.Contains(strings.ToLower(ing), q) {
				return true
			}
		}
		return false
	})
}

// LogMeal snapshots a finished analysis into the ledger, dated today.
// Every call appends a new record.
func (l *MealLog) LogMeal(r *domain.AnalysisResult, mode, service, imageURL, overlayURL string) (*domain.LoggedMeal, error) {
	if r == nil {
		r = &domain.AnalysisResult{}
	}
	now := l.now().In(l.loc)

	meal := domain.LoggedMeal{
		ID:                  l.newID(),
		Date:                now.Format(dateLayout),
		Timestamp:           now,
		Dish:                deref(r.Dish),
		DishConfidence:      deref(r.DishConfidence),
		IngredientsDetected: orEmpty(r.IngredientsDetected),
		ItemsGrams:          orEmpty(r.ItemsGrams),
		TotalGrams:          deref(r.TotalGrams),
		GramsConfidence:     deref(r.GramsConfidence),
		ItemsNutrition:      orEmpty(r.ItemsNutrition),
		TotalKcal:           deref(r.TotalKcal),
		TotalProteinG:       deref(r.TotalProteinG),
		TotalCarbsG:         deref(r.TotalCarbsG),
		TotalFatG:           deref(r.TotalFatG),
		KcalConfidence:      deref(r.KcalConfidence),
		Notes:               deref(r.Notes),
		AnalysisMode:        mode,
		ServiceUsed:         service,
		ImageURL:            imageURL,
		OverlayURL:          overlayURL,
		HealthScore:         r.HealthScore,
	}

	l.mu.Lock()
	l.meals = append(l.meals, meal)
	err := l.commitLocked()
	return &meal, err
}

// RemoveMeal drops the meal with id. Unknown ids change nothing but still
// persist and notify.
func (l *MealLog) RemoveMeal(id string) error {
	l.mu.Lock()
	l.meals = slices.DeleteFunc(l.meals, func(m domain.LoggedMeal) bool { return m.ID == id })
	return l.commitLocked()
}

// UpdateMeal applies patch to the meal with id
func (l *MealLog) UpdateMeal(id string, patch domain.MealPatch) error {
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		return fmt.Errorf("update meal %s: %w", id, ErrMealNotFound)
	}
	applyPatch(&l.meals[idx], patch)
	return l.commitLocked()
}

// MoveMealToDate changes a meal's date in place, keeping its id, its
// position in the ledger and its time of day
func (l *MealLog) MoveMealToDate(id, date string) error {
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		return fmt.Errorf("move meal %s: %w", id, ErrMealNotFound)
	}
	m := &l.meals[idx]
	m.Timestamp = l.onDate(m.Timestamp, date)
	m.Date = date
	return l.commitLocked()
}

// DuplicateToDate appends a copy of meal under a new id on date, at the
// same time of day
func (l *MealLog) DuplicateToDate(meal domain.LoggedMeal, date string) (*domain.LoggedMeal, error) {
	dup := meal
	dup.ID = l.newID()
	dup.Date = date
	dup.Timestamp = l.onDate(meal.Timestamp, date)

	l.mu.Lock()
	l.meals = append(l.meals, dup)
	err := l.commitLocked()
	return &dup, err
}

// DuplicateToToday appends a copy of meal logged now
func (l *MealLog) DuplicateToToday(meal domain.LoggedMeal) (*domain.LoggedMeal, error) {
	now := l.now().In(l.loc)

	dup := meal
	dup.ID = l.newID()
	dup.Date = now.Format(dateLayout)
	dup.Timestamp = now

	l.mu.Lock()
	l.meals = append(l.meals, dup)
	err := l.commitLocked()
	return &dup, err
}

// Get returns one meal by id
func (l *MealLog) Get(id string) (*domain.LoggedMeal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("get meal %s: %w", id, ErrMealNotFound)
	}
	meal := l.meals[idx]
	return &meal, nil
}

// ClearAll empties the ledger
func (l *MealLog) ClearAll() error {
	l.mu.Lock()
	l.meals = nil
	return l.commitLocked()
}

func (l *MealLog) indexLocked(id string) int {
	return slices.IndexFunc(l.meals, func(m domain.LoggedMeal) bool { return m.ID == id })
}

// onDate moves ts onto the calendar date, keeping its local time of day.
// Unparseable dates leave ts unchanged.
func (l *MealLog) onDate(ts time.Time, date string) time.Time {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return ts
	}
	local := ts.In(l.loc)
	return time.Date(d.Year(), d.Month(), d.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), l.loc)
}

func applyPatch(m *domain.LoggedMeal, p domain.MealPatch) {
	if p.Dish != nil {
		m.Dish = *p.Dish
	}
	if p.IngredientsDetected != nil {
		m.IngredientsDetected = p.IngredientsDetected
	}
	if p.ItemsGrams != nil {
		m.ItemsGrams = p.ItemsGrams
	}
	if p.ItemsNutrition != nil {
		m.ItemsNutrition = p.ItemsNutrition
	}
	if p.TotalGrams != nil {
		m.TotalGrams = *p.TotalGrams
	}
	if p.TotalKcal != nil {
		m.TotalKcal = *p.TotalKcal
	}
	if p.TotalProteinG != nil {
		m.TotalProteinG = *p.TotalProteinG
	}
	if p.TotalCarbsG != nil {
		m.TotalCarbsG = *p.TotalCarbsG
	}
	if p.TotalFatG != nil {
		m.TotalFatG = *p.TotalFatG
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.ImageURL != nil {
		m.ImageURL = *p.ImageURL
	}
	if p.OverlayURL != nil {
		m.OverlayURL = *p.OverlayURL
	}
	if p.HealthScore != nil {
		m.HealthScore = p.HealthScore
	}
}

func sumTotals(meals []domain.LoggedMeal) domain.DailyTotals {
	var t domain.DailyTotals
	for _, m := range meals {
		t.TotalKcal += m.TotalKcal
		t.TotalProteinG += m.TotalProteinG
		t.TotalCarbsG += m.TotalCarbsG
		t.TotalFatG += m.TotalFatG
		t.TotalGrams += m.TotalGrams
	}
	return t
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
