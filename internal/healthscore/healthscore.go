// Package healthscore builds the health-score request for an analysis and
// runs it alongside the rest of the pipeline.
package healthscore

import (
	"context"
	"log"
	"time"

	"github.com/pbaille/platelog/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Build returns the health-score payload for r, or nil while any of the
// totals it needs are missing or no ingredient portions are known.
func Build(r *domain.AnalysisResult) *domain.HealthScoreInput {
	if r == nil {
		return nil
	}
	if r.TotalKcal == nil || r.TotalGrams == nil || r.TotalFatG == nil || r.TotalProteinG == nil {
		return nil
	}
	if len(r.ItemsGrams) == 0 {
		return nil
	}

	items := make([]domain.HealthScoreItem, len(r.ItemsGrams))
	for i, g := range r.ItemsGrams {
		items[i] = domain.HealthScoreItem{Name: g.Name, Grams: g.Grams}
	}

	confidence := 1.0
	if r.KcalConfidence != nil {
		confidence = *r.KcalConfidence
	}

	return &domain.HealthScoreInput{
		TotalKcal:           *r.TotalKcal,
		TotalGrams:          *r.TotalGrams,
		TotalFatG:           *r.TotalFatG,
		TotalProteinG:       *r.TotalProteinG,
		ItemsGrams:          items,
		KcalConfidence:      confidence,
		UseConfidenceDampen: false,
	}
}

// Apply attaches a health-score response to r
func Apply(r *domain.AnalysisResult, out *domain.HealthScoreOutput) {
	if r == nil || out == nil {
		return
	}
	r.HealthScore = out
}

// Scorer is the backend call behind the health score
type Scorer interface {
	HealthScore(ctx context.Context, in domain.HealthScoreInput) (*domain.HealthScoreOutput, error)
}

// Requester scores finished analyses in the background
type Requester struct {
	scorer  Scorer
	timeout time.Duration
}

type Option func(*Requester)

func WithTimeout(d time.Duration) Option {
	return func(q *Requester) {
		q.timeout = d
	}
}

func NewRequester(s Scorer, opts ...Option) *Requester {
	q := &Requester{scorer: s, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Request snapshots the payload from r and scores it on its own goroutine.
// It returns nil when r cannot be scored yet. Otherwise the returned channel
// delivers the output once, or is closed without a value if scoring fails.
// onScore, when set, runs on the scoring goroutine before delivery.
// Failures are logged and never surfaced.
func (q *Requester) Request(ctx context.Context, r *domain.AnalysisResult, onScore func(*domain.HealthScoreOutput)) <-chan *domain.HealthScoreOutput {
	in := Build(r)
	if in == nil {
		return nil
	}

	out := make(chan *domain.HealthScoreOutput, 1)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, q.timeout)
		defer cancel()

		score, err := q.scorer.HealthScore(ctx, *in)
		if err != nil {
			log.Printf("[health] scoring failed: %v", err)
			return
		}
		if score == nil {
			return
		}
		if onScore != nil {
			onScore(score)
		}
		out <- score
	}()

	return out
}
