package intake

import (
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// View is the read model a front end renders.
type View struct {
	ID             string         `json:"id"`
	StepIndex      int            `json:"step_index"`
	TotalSteps     int            `json:"total_steps"`
	Step           StepID         `json:"step"`
	Title          string         `json:"title"`
	Progress       int            `json:"progress"`
	SkipToFeedback bool           `json:"skip_to_feedback"`
	Submitting     bool           `json:"submitting"`
	Outcome        Outcome        `json:"outcome"`
	Redirect       string         `json:"redirect,omitempty"`
	Notice         string         `json:"notice,omitempty"`
	OrderID        string         `json:"order_id,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CanAdvance     bool           `json:"can_advance"`
	BlockingReason string         `json:"blocking_reason,omitempty"`
	CanGoBack      bool           `json:"can_go_back"`
	CanSkip        bool           `json:"can_skip"`
	Answers        Answers        `json:"answers"`
	Selection      Selection      `json:"selection"`
	Quote          *pricing.Quote `json:"quote,omitempty"`
}

// Describe builds the view of s.
func (r *Reducer) Describe(id string, s State) View {
	step := r.table.Active(s)
	v := View{
		ID:             id,
		StepIndex:      s.StepIndex,
		TotalSteps:     r.table.Total(),
		Step:           step.ID,
		Title:          step.Title,
		Progress:       r.table.Progress(s),
		SkipToFeedback: s.SkipToFeedback,
		Submitting:     s.Submitting,
		Outcome:        s.Outcome,
		Redirect:       s.Redirect,
		Notice:         s.Notice,
		OrderID:        s.OrderID,
		LastError:      s.LastError,
		Answers:        s.Answers,
		Selection:      s.Selection,
	}

	if err := r.Check(s); err != nil {
		v.BlockingReason = err.Error()
	} else {
		v.CanAdvance = step.ID != StepCompletion
	}
	if !s.Terminal() && !s.Submitting {
		v.CanGoBack = s.StepIndex > 0
		_, skipErr := r.skip(s)
		v.CanSkip = skipErr == nil
	}
	if q, err := r.Quote(s); err == nil {
		v.Quote = &q
	}
	return v
}
