package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/store"
)

func str(v string) *string   { return &v }
func num(v float64) *float64 { return &v }

func newTestServer(t *testing.T) (*httptest.Server, *store.MealLog) {
	t.Helper()
	ids := 0
	meals := store.NewMealLog(store.NewMemoryKV(),
		store.WithLocation(time.UTC),
		store.WithClock(func() time.Time { return time.Date(2024, 2, 20, 8, 15, 0, 0, time.UTC) }),
		store.WithIDGenerator(func() string {
			ids++
			return []string{"", "m1", "m2", "m3", "m4"}[ids]
		}),
	)
	meals.LogMeal(&domain.AnalysisResult{Dish: str("Pancakes"), IngredientsDetected: []string{"flour", "egg"}, TotalKcal: num(450)}, "gemini", "gemini", "", "")
	meals.LogMeal(&domain.AnalysisResult{Dish: str("Omelette"), IngredientsDetected: []string{"egg"}, TotalKcal: num(300)}, "gemini", "gemini", "", "")

	srv := httptest.NewServer(New(meals, "").Handler())
	t.Cleanup(srv.Close)
	return srv, meals
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestReadRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	var health map[string]string
	if code := do(t, "GET", srv.URL+"/health", "", &health); code != 200 || health["status"] != "ok" {
		t.Errorf("health: %d %v", code, health)
	}

	var list struct {
		Meals []domain.LoggedMeal `json:"meals"`
	}
	if code := do(t, "GET", srv.URL+"/meals?date=2024-02-20", "", &list); code != 200 || len(list.Meals) != 2 {
		t.Errorf("meals by date: %d %+v", code, list)
	}

	var bad map[string]string
	if code := do(t, "GET", srv.URL+"/meals?date=yesterday", "", &bad); code != 400 || bad["error"] == "" {
		t.Errorf("bad date: %d %v", code, bad)
	}

	var found struct {
		Meals []domain.LoggedMeal `json:"meals"`
	}
	do(t, "GET", srv.URL+"/meals/search?q=EGG", "", &found)
	if len(found.Meals) != 2 {
		t.Errorf("search egg = %d meals", len(found.Meals))
	}
	do(t, "GET", srv.URL+"/meals/search?q=%20%20", "", &found)
	if found.Meals == nil || len(found.Meals) != 0 {
		t.Errorf("blank search = %+v", found.Meals)
	}

	var day domain.DailyMealLog
	if code := do(t, "GET", srv.URL+"/days/2024-02-20", "", &day); code != 200 || day.DailyTotals.TotalKcal != 750 {
		t.Errorf("day: %d %+v", code, day.DailyTotals)
	}

	var dates struct {
		Dates []string `json:"dates"`
	}
	do(t, "GET", srv.URL+"/dates", "", &dates)
	if len(dates.Dates) != 1 || dates.Dates[0] != "2024-02-20" {
		t.Errorf("dates = %v", dates.Dates)
	}
}

func TestWriteRoutes(t *testing.T) {
	srv, meals := newTestServer(t)

	var updated domain.LoggedMeal
	if code := do(t, "PATCH", srv.URL+"/meals/m1", `{"dish":"Blueberry pancakes","total_kcal":480}`, &updated); code != 200 {
		t.Fatalf("patch: %d", code)
	}
	if updated.Dish != "Blueberry pancakes" || updated.TotalKcal != 480 {
		t.Errorf("patched = %+v", updated)
	}

	var errBody map[string]string
	if code := do(t, "PATCH", srv.URL+"/meals/nope", `{"dish":"x"}`, &errBody); code != 404 {
		t.Errorf("patch unknown: %d", code)
	}

	var moved domain.LoggedMeal
	if code := do(t, "POST", srv.URL+"/meals/m1/move", `{"date":"2024-03-01"}`, &moved); code != 200 {
		t.Fatalf("move: %d", code)
	}
	if moved.Date != "2024-03-01" || moved.Timestamp.Format("15:04:05") != "08:15:00" {
		t.Errorf("moved = %s %s", moved.Date, moved.Timestamp)
	}
	if code := do(t, "POST", srv.URL+"/meals/m1/move", `{"date":"03/01/2024"}`, &errBody); code != 400 {
		t.Errorf("move bad date: %d", code)
	}

	var dup domain.LoggedMeal
	if code := do(t, "POST", srv.URL+"/meals/m2/duplicate", `{"date":"2024-02-21"}`, &dup); code != 201 {
		t.Fatalf("duplicate: %d", code)
	}
	if dup.ID != "m3" || dup.Dish != "Omelette" || dup.Date != "2024-02-21" {
		t.Errorf("dup = %+v", dup)
	}

	if code := do(t, "DELETE", srv.URL+"/meals/m2", "", nil); code != 204 {
		t.Errorf("delete: %d", code)
	}
	if got := len(meals.GetAll()); got != 2 {
		t.Errorf("meals after delete = %d", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest("OPTIONS", srv.URL+"/meals/m1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}
