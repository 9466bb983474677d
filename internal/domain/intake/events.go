package intake

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of transition event
type EventType string

const (
	EventSessionStarted       EventType = "IntakeSessionStarted"
	EventAnswerRecorded       EventType = "IntakeAnswerRecorded"
	EventStepAdvanced         EventType = "IntakeStepAdvanced"
	EventStepReturned         EventType = "IntakeStepReturned"
	EventQuestionnaireSkipped EventType = "IntakeQuestionnaireSkipped"
	EventSubmissionStarted    EventType = "IntakeSubmissionStarted"
	EventSubmissionFailed     EventType = "IntakeSubmissionFailed"
	EventIntakeCompleted      EventType = "IntakeCompleted"
	EventIntakeRejected       EventType = "IntakeRejected"
)

// Event is one entry of a session's transition log.
type Event struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	EventType     EventType `json:"event_type"`
	Action        Envelope  `json:"action"`
	FromStep      StepID    `json:"from_step"`
	ToStep        StepID    `json:"to_step"`
	FromIndex     int       `json:"from_index"`
	ToIndex       int       `json:"to_index"`
	Version       int       `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewEvent creates an event for an action on a session.
func NewEvent(sessionID string, eventType EventType, action Action) (*Event, error) {
	e := &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
	if action != nil {
		env, err := Encode(action)
		if err != nil {
			return nil, err
		}
		e.Action = env
	}
	return e, nil
}

// classify names the transition from before to after caused by a.
func classify(before, after State, a Action) EventType {
	switch {
	case after.Outcome == OutcomeRejected:
		return EventIntakeRejected
	case after.Outcome == OutcomeCompleted:
		return EventIntakeCompleted
	case !before.Submitting && after.Submitting:
		return EventSubmissionStarted
	}
	switch a.(type) {
	case SubmitFailed:
		return EventSubmissionFailed
	case SkipToFeedback:
		return EventQuestionnaireSkipped
	case Next:
		return EventStepAdvanced
	case Back:
		return EventStepReturned
	}
	return EventAnswerRecorded
}
