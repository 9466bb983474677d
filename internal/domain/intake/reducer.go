package intake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// Reducer applies actions to states. It holds no mutable state and is safe for concurrent use.
type Reducer struct {
	table   *Table
	catalog *catalog.Snapshot
	policy  pricing.Policy
}

// NewReducer creates a reducer over a step table, a loaded catalog and a fee policy.
func NewReducer(table *Table, cat *catalog.Snapshot, policy pricing.Policy) *Reducer {
	if table == nil {
		table = DefaultTable()
	}
	return &Reducer{table: table, catalog: cat, policy: policy}
}

// Table returns the step table.
func (r *Reducer) Table() *Table { return r.table }

// Catalog returns the catalog snapshot.
func (r *Reducer) Catalog() *catalog.Snapshot { return r.catalog }

// Quote prices the current selection.
func (r *Reducer) Quote(s State) (pricing.Quote, error) {
	return r.policy.Quote(s.Selection.Items(), r.catalog)
}

// Reduce returns the state after a. On error the returned state equals s.
func (r *Reducer) Reduce(s State, a Action) (State, error) {
	if a == nil {
		return s, NewInvalidArgument(ErrMsgUnknownAction)
	}
	if s.Terminal() {
		return s, NewFailedPrecondition(ErrMsgFlowEnded)
	}
	if s.Submitting {
		switch a.(type) {
		case SubmitSucceeded, SubmitFailed:
		default:
			return s, NewFailedPrecondition(ErrMsgSubmitting)
		}
	}

	if owner, ok := ownerStep(a); ok {
		if r.table.Active(s).ID != owner {
			return s, NewFailedPreconditionf("%s: %s is active", ErrMsgStepNotActive, r.table.Active(s).ID)
		}
		next, err := r.update(s, a)
		if err != nil {
			return s, err
		}
		next.LastError = ""
		return next, nil
	}

	switch a := a.(type) {
	case Next:
		return r.next(s)
	case Back:
		return r.back(s)
	case SkipToFeedback:
		return r.skip(s)
	case SubmitSucceeded:
		return r.submitted(s, a)
	case SubmitFailed:
		return r.submitFailed(s, a)
	}
	return s, NewInvalidArgument(ErrMsgUnknownAction)
}

// Check reports whether the active step may be left forward, without changing state.
// Disqualifying answers are not reported here: they end the intake on Next.
func (r *Reducer) Check(s State) error {
	if s.Terminal() {
		return NewFailedPrecondition(ErrMsgFlowEnded)
	}
	if s.Submitting {
		return NewFailedPrecondition(ErrMsgSubmitting)
	}
	step := r.table.Active(s)
	if step.Guard == nil {
		return nil
	}
	return step.Guard(s)
}

func (r *Reducer) update(s State, a Action) (State, error) {
	switch a := a.(type) {
	case SelectProduct:
		sel, err := r.selectProduct(s.Selection, a)
		if err != nil {
			return s, err
		}
		s.Selection = sel
	case SetTreatment:
		if a.Treatment != TreatmentInitial && a.Treatment != TreatmentFollowUp {
			return s, NewInvalidArgument(ErrMsgTreatmentRequired)
		}
		s.Answers.Treatment = a.Treatment
	case SetExclusion:
		s.Answers.Exclusion = a.Exclusion
	case SetDelivery:
		switch a.Delivery.Method {
		case "", DeliveryShipping, DeliveryPickup:
		default:
			return s, NewInvalidArgument(ErrMsgDeliveryRequired)
		}
		s.Answers.Delivery = a.Delivery
	case SetConsent:
		s.Answers.Consent = a.Consent
	case SetSymptoms:
		if a.Symptoms.Intensity < 0 || a.Symptoms.Intensity > 10 {
			return s, NewInvalidArgument(ErrMsgIntensityRange)
		}
		s.Answers.Symptoms = a.Symptoms
	case SetTherapies:
		s.Answers.Therapies = a.Therapies
	case SetConditions:
		s.Answers.Conditions = a.Conditions
	case SetExperience:
		s.Answers.Experience = a.Experience
	case SetFeedback:
		if a.Feedback.Satisfaction < 0 || a.Feedback.Satisfaction > 5 {
			return s, NewInvalidArgument(ErrMsgSatisfactionRange)
		}
		s.Answers.Feedback = a.Feedback
	case SetCheckout:
		if a.Checkout.PaymentMethod != "" && !a.Checkout.PaymentMethod.Valid() {
			return s, NewInvalidArgument(ErrMsgPaymentRequired)
		}
		s.Answers.Checkout = a.Checkout
	}
	return s, nil
}

func (r *Reducer) selectProduct(sel Selection, a SelectProduct) (Selection, error) {
	if a.Quantity < 0 {
		return sel, NewInvalidArgument(ErrMsgQuantityNegative)
	}
	if err := r.policy.CheckQuantity(a.Quantity); err != nil {
		return sel, NewInvalidArgument(fmt.Sprintf("%s (%d)", ErrMsgQuantityTooLarge, r.policy.MaxQuantity))
	}
	p, ok := r.catalog.Product(a.ProductID)
	if !ok {
		return sel, NewInvalidArgument(ErrMsgUnknownProduct + ": " + a.ProductID)
	}
	if a.Quantity == 0 {
		return sel.With(p.ID, Pick{}), nil
	}
	if _, ok := r.catalog.Pharmacy(a.PharmacyID); !ok {
		return sel, NewInvalidArgument(ErrMsgUnknownPharmacy + ": " + a.PharmacyID)
	}
	if !r.catalog.Carries(a.PharmacyID, p.ID) {
		return sel, NewInvalidArgument(ErrMsgNotStocked)
	}
	if _, _, err := r.policy.UnitPrice(p); err != nil {
		return sel, NewInvalidArgument(ErrMsgUnpricedProduct + ": " + p.ID)
	}
	return sel.With(p.ID, Pick{Quantity: a.Quantity, PharmacyID: a.PharmacyID}), nil
}

func (r *Reducer) next(s State) (State, error) {
	step := r.table.Active(s)

	// Disqualification wins over incomplete answers.
	if step.ID == StepExclusion && s.Answers.Exclusion.Disqualifies() {
		s.Outcome = OutcomeRejected
		s.Redirect = DisqualifiedRedirect
		s.Notice = ErrMsgDisqualifiedNotice
		s.LastError = ""
		return s, nil
	}
	if step.ID == StepCompletion {
		return s, NewFailedPrecondition(ErrMsgFlowEnded)
	}
	if step.Guard != nil {
		if err := step.Guard(s); err != nil {
			return s, err
		}
	}

	if step.ID == StepCheckout {
		if _, err := r.Quote(s); err != nil {
			if errors.Is(err, pricing.ErrUnpriced) {
				return s, NewFailedPrecondition(ErrMsgUnpricedProduct)
			}
			return s, err
		}
		s.Submitting = true
		s.LastError = ""
		return s, nil
	}

	s.StepIndex++
	s.LastError = ""
	return s, nil
}

func (r *Reducer) back(s State) (State, error) {
	if s.StepIndex <= 0 {
		return s, NewFailedPrecondition(ErrMsgAtFirstStep)
	}
	if r.table.Active(s).ID == StepCompletion {
		return s, NewFailedPrecondition(ErrMsgBackAfterComplete)
	}
	s.StepIndex--
	s.LastError = ""
	return s, nil
}

func (r *Reducer) skip(s State) (State, error) {
	first := r.table.Index(StepExclusion) + 1
	target := r.table.Index(StepFeedback)
	if s.StepIndex < first || s.StepIndex > target {
		return s, NewFailedPrecondition(ErrMsgSkipNotAllowed)
	}
	s.SkipToFeedback = true
	s.StepIndex = target
	s.LastError = ""
	return s, nil
}

func (r *Reducer) submitted(s State, a SubmitSucceeded) (State, error) {
	if !s.Submitting {
		return s, NewFailedPrecondition(ErrMsgNotSubmitting)
	}
	if strings.TrimSpace(a.OrderID) == "" {
		return s, NewInvalidArgument(ErrMsgOrderIDRequired)
	}
	s.Submitting = false
	s.StepIndex = r.table.Index(StepCompletion)
	s.Outcome = OutcomeCompleted
	s.OrderID = a.OrderID
	s.LastError = ""
	return s, nil
}

func (r *Reducer) submitFailed(s State, a SubmitFailed) (State, error) {
	if !s.Submitting {
		return s, NewFailedPrecondition(ErrMsgNotSubmitting)
	}
	s.Submitting = false
	s.LastError = a.Reason
	if s.LastError == "" {
		s.LastError = "order submission failed"
	}
	return s, nil
}
