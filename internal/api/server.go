package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/store"
)

// Server exposes the meal log over HTTP for companion clients
type Server struct {
	meals *store.MealLog
	addr  string
}

// New creates a new API server
func New(meals *store.MealLog, addr string) *Server {
	return &Server{meals: meals, addr: addr}
}

// Handler returns the routed handler, CORS included
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Meals
	mux.HandleFunc("GET /meals", s.listMeals)
	mux.HandleFunc("GET /meals/search", s.searchMeals)
	mux.HandleFunc("GET /meals/{id}", s.getMeal)
	mux.HandleFunc("PATCH /meals/{id}", s.updateMeal)
	mux.HandleFunc("DELETE /meals/{id}", s.removeMeal)
	mux.HandleFunc("POST /meals/{id}/move", s.moveMeal)
	mux.HandleFunc("POST /meals/{id}/duplicate", s.duplicateMeal)

	// Days
	mux.HandleFunc("GET /days/{date}", s.getDay)
	mux.HandleFunc("GET /dates", s.listDates)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	fmt.Printf("Starting server on %s\n", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validDate(d string) bool {
	_, err := time.Parse("2006-01-02", d)
	return err == nil
}

func (s *Server) listMeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if date := q.Get("date"); date != "" {
		if !validDate(date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":  date,
			"meals": s.meals.GetMealsForDate(date),
		})
		return
	}

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		if !validDate(from) || !validDate(to) {
			writeError(w, http.StatusBadRequest, "from and to must both be YYYY-MM-DD")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"from":  from,
			"to":    to,
			"meals": s.meals.GetMealsInDateRange(from, to),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"meals": s.meals.GetAll(),
	})
}

func (s *Server) searchMeals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, map[string]any{
		"meals": s.meals.SearchMeals(query),
		"query": query,
	})
}

func (s *Server) getMeal(w http.ResponseWriter, r *http.Request) {
	meal, err := s.meals.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (s *Server) updateMeal(w http.ResponseWriter, r *http.Request) {
	var patch domain.MealPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := s.meals.UpdateMeal(id, patch); err != nil {
		writeStoreError(w, err)
		return
	}

	meal, err := s.meals.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (s *Server) removeMeal(w http.ResponseWriter, r *http.Request) {
	if err := s.meals.RemoveMeal(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DateRequest is the body for move and duplicate
type DateRequest struct {
	Date string `json:"date"`
}

func decodeDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req DateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	req.Date = strings.TrimSpace(req.Date)
	if !validDate(req.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return req.Date, true
}

func (s *Server) moveMeal(w http.ResponseWriter, r *http.Request) {
	date, ok := decodeDate(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := s.meals.MoveMealToDate(id, date); err != nil {
		writeStoreError(w, err)
		return
	}

	meal, err := s.meals.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (s *Server) duplicateMeal(w http.ResponseWriter, r *http.Request) {
	date, ok := decodeDate(w, r)
	if !ok {
		return
	}

	meal, err := s.meals.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	dup, err := s.meals.DuplicateToDate(*meal, date)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (s *Server) getDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if date == "today" {
		writeJSON(w, http.StatusOK, s.meals.GetTodaysMealLog())
		return
	}
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, s.meals.GetDailyMealLog(date))
}

func (s *Server) listDates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dates": s.meals.GetAllMealDates(),
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrMealNotFound) {
		writeError(w, http.StatusNotFound, "meal not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
