package analysis

import (
	"context"
	"slices"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/healthscore"
	"github.com/pbaille/platelog/internal/stream"
)

// Session is the state of one analysis as the user sees it: which phases
// have arrived, the accumulated result, the editable rows and any error.
// It belongs to the goroutine running the analysis.
type Session struct {
	Result domain.AnalysisResult

	GotRecognize bool
	GotIngQuant  bool
	GotCalories  bool
	Loading      bool
	Err          string

	// Meal is the ledger record written for this run, if any
	Meal *domain.LoggedMeal

	portion  *PortionState
	rowsFrom []string
	health   <-chan *domain.HealthScoreOutput
}

func NewSession() *Session {
	return &Session{}
}

// Apply merges one phase event and reports whether it ended the stream
func (s *Session) Apply(ev stream.Event) bool {
	switch ev.Phase {
	case stream.PhaseRecognize:
		MergeRecognize(&s.Result, ev.Recognize)
		s.GotRecognize = true
		s.syncRows(false)

	case stream.PhaseIngQuant:
		MergeIngQuant(&s.Result, ev.IngQuant)
		s.GotIngQuant = true
		s.syncRows(false)

	case stream.PhaseCalories:
		MergeCalories(&s.Result, ev.Calories)
		s.GotCalories = true
		s.syncRows(s.hasNutrition())

	case stream.PhaseDone:
		MergeDone(&s.Result, ev.Done)
		s.Loading = false
		if s.Err == "" && ev.Done != nil && ev.Done.Error != nil && *ev.Done.Error != "" {
			p := stream.ErrorPayload{Error: *ev.Done.Error}
			if ev.Done.Msg != nil {
				p.Msg = *ev.Done.Msg
			}
			s.Err = p.Message()
		}
		s.syncRows(true)

	case stream.PhaseError:
		s.Loading = false
		if ev.Error != nil {
			s.Err = ev.Error.Message()
		} else {
			s.Err = stream.ErrorPayload{}.Message()
		}
	}
	return ev.Terminal()
}

// ApplyResult overlays a complete, non-streamed result
func (s *Session) ApplyResult(r *domain.AnalysisResult) {
	MergeDone(&s.Result, r)
	s.Loading = false
	s.syncRows(true)
}

func (s *Session) hasNutrition() bool {
	return len(s.Result.ItemsNutrition) > 0 || len(s.Result.ItemsKcal) > 0
}

// syncRows builds the rows when allowed and none exist, and rebuilds them
// whenever the ingredient list no longer matches the one they came from.
func (s *Session) syncRows(allowBuild bool) {
	if len(s.Result.ItemsGrams) == 0 {
		return
	}
	keys := gramsKeys(s.Result.ItemsGrams)
	if s.portion == nil {
		if allowBuild {
			s.rebuildRows(keys)
		}
		return
	}
	if !slices.Equal(keys, s.rowsFrom) {
		s.rebuildRows(keys)
	}
}

func (s *Session) rebuildRows(keys []string) {
	s.portion = NewPortionState(BuildUIItems(&s.Result))
	s.rowsFrom = keys
}

// Portions returns the editable rows, or nil before they exist
func (s *Session) Portions() *PortionState {
	return s.portion
}

// Items returns the current rows
func (s *Session) Items() []UIItem {
	if s.portion == nil {
		return nil
	}
	return s.portion.Items()
}

// Totals returns the totals for the current portions
func (s *Session) Totals() UITotals {
	if s.portion == nil {
		return UITotals{}
	}
	return s.portion.Totals()
}

// RenameItem changes one row's display name
func (s *Session) RenameItem(i int, name string) error {
	if s.portion == nil {
		return ErrNoSuchItem
	}
	return s.portion.Rename(i, name)
}

// Failed reports whether the run ended with an error message
func (s *Session) Failed() bool {
	return s.Err != ""
}

// AwaitHealthScore waits for the background health score and merges it into
// Result. It returns nil when no score was requested or scoring failed.
func (s *Session) AwaitHealthScore(ctx context.Context) (*domain.HealthScoreOutput, error) {
	if s.health == nil {
		return s.Result.HealthScore, nil
	}

	select {
	case out, ok := <-s.health:
		s.health = nil
		if !ok || out == nil {
			return nil, nil
		}
		healthscore.Apply(&s.Result, out)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
