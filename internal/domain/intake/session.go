package intake

import "time"

// MaxEvents bounds the transition log of one session. Further actions are
// refused, except the submission results of a checkout in progress.
const MaxEvents = 500

// Session is the event-sourced intake aggregate. It is not safe for concurrent
// use; Controller serialises access.
type Session struct {
	id        string
	version   int
	state     State
	reducer   *Reducer
	createdAt time.Time
	updatedAt time.Time
	history   []*Event
}

// NewSession starts a session at the first step.
func NewSession(id string, reducer *Reducer) *Session {
	now := time.Now().UTC()
	s := &Session{
		id:        id,
		state:     NewState(),
		reducer:   reducer,
		createdAt: now,
		updatedAt: now,
	}
	started, _ := NewEvent(id, EventSessionStarted, nil)
	s.record(started, s.state, s.state)
	return s
}

// ID returns the session ID
func (s *Session) ID() string { return s.id }

// Version returns the number of recorded events
func (s *Session) Version() int { return s.version }

// State returns a copy of the current state
func (s *Session) State() State { return s.state }

// Reducer returns the reducer driving the session
func (s *Session) Reducer() *Reducer { return s.reducer }

// CreatedAt returns when the session started
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns when the last event was recorded
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// History returns the full transition log.
func (s *Session) History() []*Event {
	out := make([]*Event, len(s.history))
	copy(out, s.history)
	return out
}

// Dispatch applies an action and records the transition.
func (s *Session) Dispatch(a Action) (*Event, error) {
	if len(s.history) >= MaxEvents {
		switch a.(type) {
		case SubmitSucceeded, SubmitFailed:
		default:
			return nil, NewFailedPrecondition(ErrMsgTooManyActions)
		}
	}
	before := s.state
	after, err := s.reducer.Reduce(before, a)
	if err != nil {
		return nil, err
	}

	event, err := NewEvent(s.id, classify(before, after, a), a)
	if err != nil {
		return nil, err
	}
	s.record(event, before, after)
	return event, nil
}

func (s *Session) record(event *Event, before, after State) {
	table := s.reducer.Table()
	s.version++
	event.Version = s.version
	event.FromIndex = before.StepIndex
	event.ToIndex = after.StepIndex
	event.FromStep = table.Active(before).ID
	event.ToStep = table.Active(after).ID

	s.state = after
	s.updatedAt = event.Timestamp
	s.history = append(s.history, event)
}
