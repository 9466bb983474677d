// Package intake implements the patient intake wizard as a state machine.
//
// State is a value. The Reducer turns (State, Action) into a new State or an
// *ActionError and never mutates its input. Session records every accepted
// action as an Event, and Controller adds the asynchronous order submission.
package intake

// Outcome is the terminal status of an intake.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeRejected   Outcome = "rejected"
	OutcomeCompleted  Outcome = "completed"
)

// DisqualifiedRedirect is where rejected patients are sent.
const DisqualifiedRedirect = "/"

// State is the complete wizard state.
type State struct {
	StepIndex      int       `json:"step_index"`
	SkipToFeedback bool      `json:"skip_to_feedback"`
	Answers        Answers   `json:"answers"`
	Selection      Selection `json:"selection"`
	Submitting     bool      `json:"submitting"`
	Outcome        Outcome   `json:"outcome"`
	Redirect       string    `json:"redirect,omitempty"`
	Notice         string    `json:"notice,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// NewState returns the state at the first step.
func NewState() State {
	return State{
		Outcome:   OutcomeInProgress,
		Selection: Selection{},
	}
}

// Terminal reports whether the intake was rejected or completed.
func (s State) Terminal() bool {
	return s.Outcome == OutcomeRejected || s.Outcome == OutcomeCompleted
}
