package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/stream"
)

func TestUploadAndStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["image"]
		if len(files) != 2 {
			t.Errorf("got %d image parts, want 2", len(files))
		}
		if got := files[1].Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("second part content type %q", got)
		}
		if got := r.FormValue("model"); got != "gemini-2.5-pro" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("use_logmeal"); got != "true" {
			t.Errorf("use_logmeal = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-42"})
	})
	mux.HandleFunc("GET /analyze_sse", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("job_id"); got != "job-42" {
			t.Errorf("job_id = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": hb\n\n")
		fmt.Fprint(w, "event: recognize\ndata: {\"dish\":\"Tacos\"}\n\n")
		fmt.Fprint(w, "event: done\ndata: {\"dish\":\"Tacos\"}\n\n")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()
	opts := AnalyzeOptions{Model: "gemini-2.5-pro", UseLogMeal: true}

	jobID, err := c.Upload(ctx, []Image{
		{Name: "a.jpg", Data: []byte("jpeg")},
		{Name: "b.PNG", Data: []byte("png")},
	}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "job-42" {
		t.Fatalf("job id = %q", jobID)
	}

	s, err := c.OpenStream(ctx, jobID, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var phases []stream.Phase
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		phases = append(phases, ev.Phase)
	}
	if len(phases) != 2 || phases[0] != stream.PhaseRecognize || phases[1] != stream.PhaseDone {
		t.Errorf("phases = %v", phases)
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"msg", http.StatusBadRequest, `{"error":"bad_request","msg":"image too large"}`, "image too large"},
		{"error only", http.StatusInternalServerError, `{"error":"model unavailable"}`, "model unavailable"},
		{"plain text", http.StatusBadGateway, "upstream down", "HTTP 502: upstream down"},
		{"empty", http.StatusServiceUnavailable, "", "backend error (status 503)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Analyze(context.Background(), []Image{{Name: "x.jpg"}}, AnalyzeOptions{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("status = %d", apiErr.Status)
			}
			if apiErr.Error() != tt.message {
				t.Errorf("message = %q, want %q", apiErr.Error(), tt.message)
			}
		})
	}
}

func TestOpenStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"unknown job"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).OpenStream(context.Background(), "nope", AnalyzeOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "unknown job" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestValidationBeforeNetwork(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	if _, err := c.Upload(ctx, nil, AnalyzeOptions{}); !errors.Is(err, ErrNoImages) {
		t.Errorf("Upload: %v", err)
	}
	if _, err := c.Analyze(ctx, nil, AnalyzeOptions{}); !errors.Is(err, ErrNoImages) {
		t.Errorf("Analyze: %v", err)
	}
	if _, err := c.AnalyzeText(ctx, "   "); !errors.Is(err, ErrEmptyHint) {
		t.Errorf("AnalyzeText: %v", err)
	}
	if _, err := c.QueryRecipes(ctx, []string{" ", ""}, 5, ModeFlexible); !errors.Is(err, ErrNoIngredients) {
		t.Errorf("QueryRecipes: %v", err)
	}
	if hits != 0 {
		t.Errorf("server hit %d times", hits)
	}
}

func TestAnalyzeResolvesURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"dish":"Salad","overlay_url":"/static/overlay.png","image_url":"https://cdn.example.com/a.jpg"}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL).Analyze(context.Background(), []Image{{Name: "x.jpg"}}, AnalyzeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := *res.OverlayURL; got != srv.URL+"/static/overlay.png" {
		t.Errorf("overlay_url = %q", got)
	}
	if got := *res.ImageURL; got != "https://cdn.example.com/a.jpg" {
		t.Errorf("image_url = %q", got)
	}
}

func TestAbsolutize(t *testing.T) {
	c := New("http://api.local:5000/")
	tests := map[string]string{
		"":                         "",
		"/static/x.png":            "http://api.local:5000/static/x.png",
		"static/x.png":             "http://api.local:5000/static/x.png",
		"https://other.host/y.png": "https://other.host/y.png",
	}
	for in, want := range tests {
		if got := c.Absolutize(in); got != want {
			t.Errorf("Absolutize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAnalyzeTextAndHealthScore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze_text", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["hint"] != "two eggs and toast" {
			t.Errorf("hint = %q", body["hint"])
		}
		io.WriteString(w, `{"dish":"Eggs on toast","total_kcal":320}`)
	})
	mux.HandleFunc("POST /health-score", func(w http.ResponseWriter, r *http.Request) {
		var in domain.HealthScoreInput
		json.NewDecoder(r.Body).Decode(&in)
		if in.TotalKcal != 320 || in.UseConfidenceDampen {
			t.Errorf("unexpected input %+v", in)
		}
		io.WriteString(w, `{"health_score":6.5,"component_scores":{"energy_density":0.7},"drivers_positive":["protein"]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	res, err := c.AnalyzeText(ctx, "  two eggs and toast ")
	if err != nil {
		t.Fatal(err)
	}
	if *res.Dish != "Eggs on toast" || *res.TotalKcal != 320 {
		t.Errorf("unexpected result %+v", res)
	}

	out, err := c.HealthScore(ctx, domain.HealthScoreInput{TotalKcal: 320})
	if err != nil {
		t.Fatal(err)
	}
	if out.HealthScore != 6.5 || out.ComponentScores.EnergyDensity != 0.7 || len(out.DriversPositive) != 1 {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestHealthScoreFailureBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"health_score_failed","raw":"not json"}`, "health_score_failed"},
		{"message preferred", `{"error":"health_score_failed","message":"model refused"}`, "model refused"},
		{"missing score", `{"component_scores":{"energy_density":0.4}}`, "no score in response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			out, err := New(srv.URL).HealthScore(context.Background(), domain.HealthScoreInput{TotalKcal: 100})
			if !errors.Is(err, ErrScoreFailed) {
				t.Fatalf("err = %v, want ErrScoreFailed", err)
			}
			if out != nil {
				t.Errorf("out = %+v, want nil", out)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRecipes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /query", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("i") != "tomato,basil" || q.Get("top") != "3" || q.Get("mode") != "strict" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"query_ingredients":["tomato","basil"],"hits":[{"dish_name":"Caprese","image_url":"/img/c.jpg","score":0.9}],"sources":{"Caprese":[{"title":"Caprese","link":"https://x","displayLink":"x"}]}}`)
	})
	mux.HandleFunc("GET /recipe_details", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dish_name") != "Caprese" {
			t.Errorf("dish_name = %q", r.URL.Query().Get("dish_name"))
		}
		io.WriteString(w, `{"dish_name":"Caprese","ingredients":["tomato"],"sources":[{"title":"t","link":"https://x"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	resp, err := c.QueryRecipes(ctx, []string{"tomato", " basil "}, 3, ModeStrict)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ImageURL != srv.URL+"/img/c.jpg" {
		t.Errorf("hits = %+v", resp.Hits)
	}
	if src := resp.Sources["Caprese"]; len(src) != 1 || src[0].DisplayLink != "x" {
		t.Errorf("sources = %+v", resp.Sources)
	}

	details, err := c.RecipeDetails(ctx, "Caprese", []string{"tomato"})
	if err != nil {
		t.Fatal(err)
	}
	if len(details.Sources) != 1 {
		t.Errorf("details = %+v", details)
	}
}
