package intake

import (
	"context"
	"errors"
	"time"

	"github.com/drfirst/go-intake/internal/domain/pricing"
)

var (
	// ErrSubmissionFailed wraps every error returned by a Submitter.
	ErrSubmissionFailed = errors.New("order submission failed")
	// ErrOrderExists is returned by a Submitter when the session's order was
	// stored by an earlier attempt.
	ErrOrderExists = errors.New("order already submitted for session")
)

// OrderExistsError names the order an earlier attempt stored for the session.
// The controller completes the session with it.
type OrderExistsError struct {
	OrderID    string
	AcceptedAt time.Time
}

func (e *OrderExistsError) Error() string { return ErrOrderExists.Error() + ": " + e.OrderID }

func (e *OrderExistsError) Unwrap() error { return ErrOrderExists }

// Order is a completed intake handed to fulfilment.
type Order struct {
	ID                string        `json:"id"`
	SessionID         string        `json:"session_id"`
	Treatment         TreatmentType `json:"treatment"`
	SkipQuestionnaire bool          `json:"skip_questionnaire"`
	Delivery          Delivery      `json:"delivery"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	Selection         Selection     `json:"selection"`
	Quote             pricing.Quote `json:"quote"`
	Answers           Answers       `json:"answers"`
	Flags             []string      `json:"flags,omitempty"`
	Events            []*Event      `json:"events,omitempty"`
	SubmittedAt       time.Time     `json:"submitted_at"`
}

// Confirmation acknowledges a stored order.
type Confirmation struct {
	OrderID    string    `json:"order_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Submitter stores or forwards a checked-out order. Implementations must
// return promptly once ctx is done.
type Submitter interface {
	Submit(ctx context.Context, order *Order) (*Confirmation, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, order *Order) (*Confirmation, error)

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, order *Order) (*Confirmation, error) {
	return f(ctx, order)
}

// DefaultSubmitDelay is the simulated processing time of DelaySubmitter.
const DefaultSubmitDelay = 2 * time.Second

// DelaySubmitter accepts every order after a fixed delay.
type DelaySubmitter struct {
	Delay time.Duration
}

// Submit waits for the delay or for ctx to be done.
func (d DelaySubmitter) Submit(ctx context.Context, order *Order) (*Confirmation, error) {
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return &Confirmation{OrderID: order.ID, AcceptedAt: time.Now().UTC()}, nil
	}
}

// buildOrder assembles an order from the checkout state.
func buildOrder(id string, session *Session) (*Order, error) {
	st := session.State()
	quote, err := session.Reducer().Quote(st)
	if err != nil {
		return nil, err
	}
	return &Order{
		ID:                id,
		SessionID:         session.ID(),
		Treatment:         st.Answers.Treatment,
		SkipQuestionnaire: st.SkipToFeedback,
		Delivery:          st.Answers.Delivery,
		PaymentMethod:     st.Answers.Checkout.PaymentMethod,
		Selection:         st.Selection,
		Quote:             quote,
		Answers:           st.Answers,
		Flags:             st.Answers.Flags(),
		Events:            session.History(),
		SubmittedAt:       time.Now().UTC(),
	}, nil
}
