package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// Deps are the collaborators of a Controller. Nil fields get defaults.
type Deps struct {
	Submitter  Submitter
	Recorder   Recorder
	Notifier   Notifier
	Logger     *zap.Logger
	NewOrderID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Submitter == nil {
		d.Submitter = DelaySubmitter{Delay: DefaultSubmitDelay}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.NewOrderID == nil {
		d.NewOrderID = uuid.NewString
	}
	return d
}

// Controller owns one session and is the only writer of its state.
// All methods are safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	session    *Session
	deps       Deps
	lastActive time.Time
}

// NewController wraps a session.
func NewController(session *Session, deps Deps) *Controller {
	return &Controller{
		session:    session,
		deps:       deps.withDefaults(),
		lastActive: time.Now(),
	}
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.session.ID() }

// Catalog returns the catalog the session was started with.
func (c *Controller) Catalog() *catalog.Snapshot { return c.session.Reducer().Catalog() }

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State()
}

// View returns the read model of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Reducer().Describe(c.session.ID(), c.session.State())
}

// Quote prices the current selection.
func (c *Controller) Quote() (pricing.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Reducer().Quote(c.session.State())
}

// Events returns the transition log.
func (c *Controller) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.History()
}

// LastActive returns when the session last received an action.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Dispatch applies an action from a front end. Submission results are
// produced by the controller itself and are refused here.
func (c *Controller) Dispatch(ctx context.Context, a Action) (State, error) {
	switch a.(type) {
	case Next:
		return c.Next(ctx)
	case SubmitSucceeded, SubmitFailed:
		return c.State(), NewInvalidArgument("submission results cannot be dispatched directly")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(ctx, a)
}

// Back moves to the previous step.
func (c *Controller) Back(ctx context.Context) (State, error) {
	return c.Dispatch(ctx, Back{})
}

// SkipToFeedback jumps from the questionnaire to the feedback step.
func (c *Controller) SkipToFeedback(ctx context.Context) (State, error) {
	return c.Dispatch(ctx, SkipToFeedback{})
}

// Next advances the wizard. At checkout it submits the order and blocks until
// the Submitter returns or ctx is done; the session stays in the submitting
// state meanwhile and refuses other actions.
func (c *Controller) Next(ctx context.Context) (State, error) {
	c.mu.Lock()
	st, err := c.applyLocked(ctx, Next{})
	if err != nil || !st.Submitting {
		c.mu.Unlock()
		return st, err
	}

	order, err := buildOrder(c.deps.NewOrderID(), c.session)
	if err != nil {
		st, _ = c.applyLocked(ctx, SubmitFailed{Reason: err.Error()})
		c.mu.Unlock()
		return st, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	c.mu.Unlock()

	c.deps.Logger.Info("submitting order",
		zap.String("session_id", order.SessionID),
		zap.String("order_id", order.ID),
		zap.String("grand_total", order.Quote.GrandTotal.String()))

	start := time.Now()
	conf, subErr := c.deps.Submitter.Submit(ctx, order)
	// A retry after a lost commit acknowledgement finds the order already stored.
	var exists *OrderExistsError
	if errors.As(subErr, &exists) && exists.OrderID != "" {
		c.deps.Logger.Info("order was stored by an earlier attempt",
			zap.String("session_id", order.SessionID),
			zap.String("order_id", exists.OrderID))
		conf, subErr = &Confirmation{OrderID: exists.OrderID, AcceptedAt: exists.AcceptedAt}, nil
	}
	c.deps.Recorder.SubmissionFinished(time.Since(start), subErr)

	c.mu.Lock()
	defer c.mu.Unlock()

	if subErr != nil {
		reason := "order submission failed, please try again"
		if errors.Is(subErr, context.Canceled) || errors.Is(subErr, context.DeadlineExceeded) {
			reason = "order submission was cancelled"
		}
		st, _ = c.applyLocked(ctx, SubmitFailed{Reason: reason})
		c.deps.Logger.Warn("order submission failed",
			zap.String("session_id", order.SessionID),
			zap.String("order_id", order.ID),
			zap.Error(subErr))
		return st, fmt.Errorf("%w: %w", ErrSubmissionFailed, subErr)
	}

	orderID := order.ID
	if conf != nil && conf.OrderID != "" {
		orderID = conf.OrderID
	}
	st, err = c.applyLocked(ctx, SubmitSucceeded{OrderID: orderID})
	if err != nil {
		return st, err
	}
	c.deps.Recorder.SessionCompleted(order.Quote.GrandTotal, order.SkipQuestionnaire)
	c.deps.Logger.Info("intake completed",
		zap.String("session_id", order.SessionID),
		zap.String("order_id", orderID))
	return st, nil
}

func (c *Controller) applyLocked(ctx context.Context, a Action) (State, error) {
	before := c.session.State()
	c.lastActive = time.Now()

	event, err := c.session.Dispatch(a)
	if err != nil {
		c.deps.Logger.Debug("action refused",
			zap.String("session_id", c.session.ID()),
			zap.String("action", string(a.Type())),
			zap.Error(err))
		return before, err
	}

	after := c.session.State()
	if event.FromIndex != event.ToIndex || event.FromStep != event.ToStep {
		c.deps.Recorder.StepChanged(event.FromStep, event.ToStep)
	}
	if event.EventType == EventIntakeRejected {
		c.reject(ctx, event, after)
	}
	return after, nil
}

func (c *Controller) reject(ctx context.Context, event *Event, st State) {
	c.deps.Recorder.SessionRejected(event.FromStep)
	c.deps.Logger.Info("intake rejected by exclusion criteria",
		zap.String("session_id", c.session.ID()),
		zap.String("redirect", st.Redirect))

	err := c.deps.Notifier.IntakeRejected(ctx, Rejection{
		SessionID: c.session.ID(),
		Step:      event.FromStep,
		Exclusion: st.Answers.Exclusion,
		Redirect:  st.Redirect,
		At:        event.Timestamp,
	})
	if err != nil {
		c.deps.Logger.Error("failed to record rejection",
			zap.String("session_id", c.session.ID()),
			zap.Error(err))
	}
}
