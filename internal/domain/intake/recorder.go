package intake

import (
	"context"
	"time"

	"github.com/drfirst/go-intake/internal/domain/money"
)

// Recorder receives lifecycle signals for metrics.
type Recorder interface {
	SessionStarted()
	SessionAbandoned(at StepID)
	SessionsActive(n int)
	StepChanged(from, to StepID)
	SessionRejected(at StepID)
	SessionCompleted(total money.Amount, skippedQuestionnaire bool)
	SubmissionFinished(d time.Duration, err error)
}

// Rejection describes a disqualified intake.
type Rejection struct {
	SessionID string    `json:"session_id"`
	Step      StepID    `json:"step"`
	Exclusion Exclusion `json:"exclusion"`
	Redirect  string    `json:"redirect"`
	At        time.Time `json:"at"`
}

// Notifier is told about rejected intakes so they can be audited.
type Notifier interface {
	IntakeRejected(ctx context.Context, r Rejection) error
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()                         {}
func (nopRecorder) SessionAbandoned(StepID)                 {}
func (nopRecorder) SessionsActive(int)                      {}
func (nopRecorder) StepChanged(StepID, StepID)              {}
func (nopRecorder) SessionRejected(StepID)                  {}
func (nopRecorder) SessionCompleted(money.Amount, bool)     {}
func (nopRecorder) SubmissionFinished(time.Duration, error) {}

type nopNotifier struct{}

func (nopNotifier) IntakeRejected(context.Context, Rejection) error { return nil }
