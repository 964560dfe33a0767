package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pbaille/platelog/internal/backend"
	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/healthscore"
	"github.com/pbaille/platelog/internal/stream"
)

// ErrAnalysisFailed wraps the message of a run the backend reported as failed
var ErrAnalysisFailed = errors.New("analysis failed")

// Analysis modes recorded on logged meals
const (
	ModeGemini   = "gemini"
	ModeLogMeal  = "logmeal"
	ModeFallback = "fallback"
	ModeText     = "text"
)

// Backend is the part of the analysis service a run needs
type Backend interface {
	Upload(ctx context.Context, images []backend.Image, opts backend.AnalyzeOptions) (string, error)
	OpenStream(ctx context.Context, jobID string, opts backend.AnalyzeOptions) (*stream.Stream, error)
	Analyze(ctx context.Context, images []backend.Image, opts backend.AnalyzeOptions) (*domain.AnalysisResult, error)
	AnalyzeText(ctx context.Context, hint string) (*domain.AnalysisResult, error)
	HealthScore(ctx context.Context, in domain.HealthScoreInput) (*domain.HealthScoreOutput, error)
	ResolveURLs(r *domain.AnalysisResult)
}

// MealLogger records finished runs
type MealLogger interface {
	LogMeal(r *domain.AnalysisResult, mode, service, imageURL, overlayURL string) (*domain.LoggedMeal, error)
	UpdateMeal(id string, patch domain.MealPatch) error
}

// Pipeline drives upload, streaming, logging and scoring for one run at a
// time. Starting a run cancels the previous one.
type Pipeline struct {
	backend Backend
	meals   MealLogger
	health  *healthscore.Requester

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int
}

type Option func(*Pipeline)

// WithHealthRequester replaces the default health-score requester
func WithHealthRequester(q *healthscore.Requester) Option {
	return func(p *Pipeline) {
		p.health = q
	}
}

// WithoutHealthScore skips health scoring
func WithoutHealthScore() Option {
	return func(p *Pipeline) {
		p.health = nil
	}
}

// NewPipeline creates a Pipeline. meals may be nil to skip logging.
func NewPipeline(b Backend, meals MealLogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend: b,
		meals:   meals,
		health:  healthscore.NewRequester(b),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stop cancels the run in progress, if any. The run returns its session
// idle with context.Canceled.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Pipeline) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.mu.Unlock()

	return ctx, func() {
		cancel()
		p.mu.Lock()
		if p.gen == gen {
			p.cancel = nil
		}
		p.mu.Unlock()
	}
}

// Run uploads the images and follows the phase stream to the end.
// onUpdate, when set, is called after every applied event.
func (p *Pipeline) Run(ctx context.Context, images []backend.Image, opts backend.AnalyzeOptions, onUpdate func(*Session)) (*Session, error) {
	s := NewSession()
	if len(images) == 0 {
		s.Err = backend.ErrNoImages.Error()
		return s, backend.ErrNoImages
	}

	ctx, end := p.begin(ctx)
	defer end()

	s.Loading = true
	if onUpdate != nil {
		onUpdate(s)
	}

	jobID, err := p.backend.Upload(ctx, images, opts)
	if err != nil {
		return p.fail(ctx, s, err)
	}
	log.Printf("[pipeline] job %s started", jobID)

	st, err := p.backend.OpenStream(ctx, jobID, opts)
	if err != nil {
		return p.fail(ctx, s, err)
	}
	defer st.Close()

	for {
		ev, err := st.Next(ctx)
		if err != nil {
			return p.fail(ctx, s, err)
		}
		terminal := s.Apply(ev)
		if onUpdate != nil {
			onUpdate(s)
		}
		if terminal {
			break
		}
	}

	if s.Failed() {
		return s, fmt.Errorf("%w: %s", ErrAnalysisFailed, s.Err)
	}

	mode := modeFor(opts)
	if opts.UseLogMeal && len(s.Result.ItemsGrams) <= 1 {
		if p.fallback(ctx, s, images, opts) {
			mode = ModeFallback
			if onUpdate != nil {
				onUpdate(s)
			}
		}
	}

	p.backend.ResolveURLs(&s.Result)
	p.finish(ctx, s, mode, serviceFor(opts))
	return s, nil
}

// RunSync analyses the images in a single blocking request
func (p *Pipeline) RunSync(ctx context.Context, images []backend.Image, opts backend.AnalyzeOptions) (*Session, error) {
	s := NewSession()
	if len(images) == 0 {
		s.Err = backend.ErrNoImages.Error()
		return s, backend.ErrNoImages
	}

	ctx, end := p.begin(ctx)
	defer end()

	s.Loading = true
	res, err := p.backend.Analyze(ctx, images, opts)
	if err != nil {
		return p.fail(ctx, s, err)
	}
	return p.complete(ctx, s, res, modeFor(opts), serviceFor(opts))
}

// RunText estimates a meal from its description
func (p *Pipeline) RunText(ctx context.Context, hint string) (*Session, error) {
	s := NewSession()

	ctx, end := p.begin(ctx)
	defer end()

	s.Loading = true
	res, err := p.backend.AnalyzeText(ctx, hint)
	if err != nil {
		return p.fail(ctx, s, err)
	}
	return p.complete(ctx, s, res, ModeText, ModeText)
}

func (p *Pipeline) complete(ctx context.Context, s *Session, res *domain.AnalysisResult, mode, service string) (*Session, error) {
	s.ApplyResult(res)
	s.GotRecognize, s.GotIngQuant, s.GotCalories = true, true, true

	if res.Error != nil && *res.Error != "" {
		s.Err = *res.Error
		return s, fmt.Errorf("%w: %s", ErrAnalysisFailed, s.Err)
	}

	p.finish(ctx, s, mode, service)
	return s, nil
}

// fail returns the session to idle. A cancelled run carries no message.
func (p *Pipeline) fail(ctx context.Context, s *Session, err error) (*Session, error) {
	s.Loading = false
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.Err = ""
		return s, ctxErr
	}
	s.Err = userMessage(err)
	return s, err
}

func userMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

// fallback re-runs a collapsed LogMeal result through the full model
func (p *Pipeline) fallback(ctx context.Context, s *Session, images []backend.Image, opts backend.AnalyzeOptions) bool {
	alt := opts
	alt.UseLogMeal = false

	log.Printf("[pipeline] %d ingredient rows from logmeal, retrying without it", len(s.Result.ItemsGrams))
	res, err := p.backend.Analyze(ctx, images, alt)
	if err != nil {
		log.Printf("[pipeline] fallback analyze: %v", err)
		return false
	}
	s.ApplyResult(res)
	return true
}

// finish logs the meal and starts the health score. Neither can fail the run.
func (p *Pipeline) finish(ctx context.Context, s *Session, mode, service string) {
	if p.meals != nil {
		if s.Result.Dish == nil || *s.Result.Dish == "" {
			log.Printf("[pipeline] not logging meal: no dish recognized")
		} else {
			meal, err := p.meals.LogMeal(&s.Result, mode, service, deref(s.Result.ImageURL), deref(s.Result.OverlayURL))
			if err != nil {
				log.Printf("[pipeline] log meal: %v", err)
			}
			s.Meal = meal
		}
	}

	if p.health == nil {
		return
	}

	var mealID string
	if s.Meal != nil {
		mealID = s.Meal.ID
	}
	s.health = p.health.Request(ctx, &s.Result, func(out *domain.HealthScoreOutput) {
		if mealID == "" || p.meals == nil {
			return
		}
		if err := p.meals.UpdateMeal(mealID, domain.MealPatch{HealthScore: out}); err != nil {
			log.Printf("[pipeline] store health score: %v", err)
		}
	})
}

func modeFor(opts backend.AnalyzeOptions) string {
	if opts.UseLogMeal {
		return ModeLogMeal
	}
	return ModeGemini
}

func serviceFor(opts backend.AnalyzeOptions) string {
	if opts.UseLogMeal {
		return ModeLogMeal
	}
	if opts.Model != "" {
		return opts.Model
	}
	return ModeGemini
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
