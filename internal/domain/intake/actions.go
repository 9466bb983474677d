package intake

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies an action on the wire.
type ActionType string

const (
	ActionSelectProduct   ActionType = "select_product"
	ActionSetTreatment    ActionType = "set_treatment"
	ActionSetExclusion    ActionType = "set_exclusion"
	ActionSetDelivery     ActionType = "set_delivery"
	ActionSetConsent      ActionType = "set_consent"
	ActionSetSymptoms     ActionType = "set_symptoms"
	ActionSetTherapies    ActionType = "set_therapies"
	ActionSetConditions   ActionType = "set_conditions"
	ActionSetExperience   ActionType = "set_experience"
	ActionSetFeedback     ActionType = "set_feedback"
	ActionSetCheckout     ActionType = "set_checkout"
	ActionNext            ActionType = "next"
	ActionBack            ActionType = "back"
	ActionSkipToFeedback  ActionType = "skip_to_feedback"
	ActionSubmitSucceeded ActionType = "submit_succeeded"
	ActionSubmitFailed    ActionType = "submit_failed"
)

// Action is a request to change the wizard state. The set of actions is closed.
type Action interface {
	Type() ActionType
	payload() interface{}
}

// SelectProduct sets the quantity of a product at a pharmacy. Quantity 0 removes it.
type SelectProduct struct {
	ProductID  string `json:"product_id"`
	PharmacyID string `json:"pharmacy_id"`
	Quantity   int    `json:"quantity"`
}

type SetTreatment struct {
	Treatment TreatmentType `json:"treatment"`
}

type SetExclusion struct{ Exclusion Exclusion }
type SetDelivery struct{ Delivery Delivery }
type SetConsent struct{ Consent Consent }
type SetSymptoms struct{ Symptoms Symptoms }
type SetTherapies struct{ Therapies Therapies }
type SetConditions struct{ Conditions Conditions }
type SetExperience struct{ Experience Experience }
type SetFeedback struct{ Feedback Feedback }
type SetCheckout struct{ Checkout Checkout }

type Next struct{}
type Back struct{}
type SkipToFeedback struct{}

// SubmitSucceeded completes a pending submission.
type SubmitSucceeded struct {
	OrderID string `json:"order_id"`
}

// SubmitFailed aborts a pending submission and keeps the checkout step.
type SubmitFailed struct {
	Reason string `json:"reason"`
}

func (SelectProduct) Type() ActionType   { return ActionSelectProduct }
func (SetTreatment) Type() ActionType    { return ActionSetTreatment }
func (SetExclusion) Type() ActionType    { return ActionSetExclusion }
func (SetDelivery) Type() ActionType     { return ActionSetDelivery }
func (SetConsent) Type() ActionType      { return ActionSetConsent }
func (SetSymptoms) Type() ActionType     { return ActionSetSymptoms }
func (SetTherapies) Type() ActionType    { return ActionSetTherapies }
func (SetConditions) Type() ActionType   { return ActionSetConditions }
func (SetExperience) Type() ActionType   { return ActionSetExperience }
func (SetFeedback) Type() ActionType     { return ActionSetFeedback }
func (SetCheckout) Type() ActionType     { return ActionSetCheckout }
func (Next) Type() ActionType            { return ActionNext }
func (Back) Type() ActionType            { return ActionBack }
func (SkipToFeedback) Type() ActionType  { return ActionSkipToFeedback }
func (SubmitSucceeded) Type() ActionType { return ActionSubmitSucceeded }
func (SubmitFailed) Type() ActionType    { return ActionSubmitFailed }

func (a SelectProduct) payload() interface{}   { return a }
func (a SetTreatment) payload() interface{}    { return a }
func (a SetExclusion) payload() interface{}    { return a.Exclusion }
func (a SetDelivery) payload() interface{}     { return a.Delivery }
func (a SetConsent) payload() interface{}      { return a.Consent }
func (a SetSymptoms) payload() interface{}     { return a.Symptoms }
func (a SetTherapies) payload() interface{}    { return a.Therapies }
func (a SetConditions) payload() interface{}   { return a.Conditions }
func (a SetExperience) payload() interface{}   { return a.Experience }
func (a SetFeedback) payload() interface{}     { return a.Feedback }
func (a SetCheckout) payload() interface{}     { return a.Checkout }
func (Next) payload() interface{}              { return nil }
func (Back) payload() interface{}              { return nil }
func (SkipToFeedback) payload() interface{}    { return nil }
func (a SubmitSucceeded) payload() interface{} { return a }
func (a SubmitFailed) payload() interface{}    { return a }

// ownerStep returns the step whose answers an update action writes.
func ownerStep(a Action) (StepID, bool) {
	switch a.(type) {
	case SelectProduct:
		return StepProducts, true
	case SetTreatment:
		return StepTreatment, true
	case SetExclusion:
		return StepExclusion, true
	case SetDelivery:
		return StepDelivery, true
	case SetConsent:
		return StepConsent, true
	case SetSymptoms:
		return StepSymptoms, true
	case SetTherapies:
		return StepTherapies, true
	case SetConditions:
		return StepConditions, true
	case SetExperience:
		return StepExperience, true
	case SetFeedback:
		return StepFeedback, true
	case SetCheckout:
		return StepCheckout, true
	}
	return "", false
}

// Envelope is the JSON form of an action.
type Envelope struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps an action into an envelope.
func Encode(a Action) (Envelope, error) {
	env := Envelope{Type: a.Type()}
	if p := a.payload(); p != nil {
		b, err := json.Marshal(p)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s: %w", a.Type(), err)
		}
		env.Payload = b
	}
	return env, nil
}

// Decode turns an envelope back into an action.
func Decode(env Envelope) (Action, error) {
	switch env.Type {
	case ActionSelectProduct:
		return decodeInto(env, func(v SelectProduct) Action { return v })
	case ActionSetTreatment:
		return decodeInto(env, func(v SetTreatment) Action { return v })
	case ActionSetExclusion:
		return decodeInto(env, func(v Exclusion) Action { return SetExclusion{Exclusion: v} })
	case ActionSetDelivery:
		return decodeInto(env, func(v Delivery) Action { return SetDelivery{Delivery: v} })
	case ActionSetConsent:
		return decodeInto(env, func(v Consent) Action { return SetConsent{Consent: v} })
	case ActionSetSymptoms:
		return decodeInto(env, func(v Symptoms) Action { return SetSymptoms{Symptoms: v} })
	case ActionSetTherapies:
		return decodeInto(env, func(v Therapies) Action { return SetTherapies{Therapies: v} })
	case ActionSetConditions:
		return decodeInto(env, func(v Conditions) Action { return SetConditions{Conditions: v} })
	case ActionSetExperience:
		return decodeInto(env, func(v Experience) Action { return SetExperience{Experience: v} })
	case ActionSetFeedback:
		return decodeInto(env, func(v Feedback) Action { return SetFeedback{Feedback: v} })
	case ActionSetCheckout:
		return decodeInto(env, func(v Checkout) Action { return SetCheckout{Checkout: v} })
	case ActionNext:
		return Next{}, nil
	case ActionBack:
		return Back{}, nil
	case ActionSkipToFeedback:
		return SkipToFeedback{}, nil
	case ActionSubmitSucceeded:
		return decodeInto(env, func(v SubmitSucceeded) Action { return v })
	case ActionSubmitFailed:
		return decodeInto(env, func(v SubmitFailed) Action { return v })
	}
	return nil, NewInvalidArgument(fmt.Sprintf("%s: %q", ErrMsgUnknownAction, env.Type))
}

func decodeInto[T any](env Envelope, wrap func(T) Action) (Action, error) {
	var v T
	if err := unmarshalPayload(env, &v); err != nil {
		return nil, err
	}
	return wrap(v), nil
}

func unmarshalPayload(env Envelope, dst interface{}) error {
	if len(env.Payload) == 0 {
		return NewInvalidArgument(fmt.Sprintf("%s requires a payload", env.Type))
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return NewInvalidArgument(fmt.Sprintf("invalid %s payload: %v", env.Type, err))
	}
	return nil
}
