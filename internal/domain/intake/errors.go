package intake

import (
	"errors"
	"fmt"
)

// StatusCode classifies a rejected action.
type StatusCode int

const (
	StatusInvalidArgument StatusCode = iota
	StatusFailedPrecondition
	StatusNotFound
)

func (s StatusCode) String() string {
	switch s {
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusFailedPrecondition:
		return "failed_precondition"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Messages for rejected actions.
const (
	ErrMsgFlowEnded          = "intake has already ended"
	ErrMsgSubmitting         = "order submission is in progress"
	ErrMsgNotSubmitting      = "no order submission is in progress"
	ErrMsgAtFirstStep        = "already at the first step"
	ErrMsgBackAfterComplete  = "a completed intake cannot go back"
	ErrMsgStepNotActive      = "these answers belong to a step that is not active"
	ErrMsgSkipNotAllowed     = "the questionnaire can only be skipped after the exclusion criteria"
	ErrMsgUnknownAction      = "unknown action type"
	ErrMsgUnknownProduct     = "unknown product"
	ErrMsgUnknownPharmacy    = "unknown pharmacy"
	ErrMsgNotStocked         = "the pharmacy does not stock this product"
	ErrMsgQuantityNegative   = "quantity cannot be negative"
	ErrMsgQuantityTooLarge   = "quantity is above the per-product limit"
	ErrMsgSelectionEmpty     = "select at least one product"
	ErrMsgTreatmentRequired  = "choose a treatment type"
	ErrMsgExclusionOpen      = "answer every exclusion question"
	ErrMsgDeliveryRequired   = "choose shipping or pickup"
	ErrMsgAddressIncomplete  = "complete the shipping address"
	ErrMsgConsentMissing     = "accept every declaration to continue"
	ErrMsgSymptomRequired    = "tick at least one symptom"
	ErrMsgOtherSymptomText   = "describe the other symptom"
	ErrMsgIntensityRange     = "rate the intensity from 1 to 10"
	ErrMsgTherapyRequired    = "tick prior therapies or none"
	ErrMsgMedicationOpen     = "say whether you take other medication"
	ErrMsgMedicationList     = "list the medication you take"
	ErrMsgExperienceOpen     = "say whether you have used cannabis before"
	ErrMsgSatisfactionRange  = "rate your satisfaction from 1 to 5"
	ErrMsgPaymentRequired    = "choose a payment method"
	ErrMsgOrderNotConfirmed  = "confirm the order to continue"
	ErrMsgUnpricedProduct    = "a selected product has no list price"
	ErrMsgOrderIDRequired    = "order id is required"
	ErrMsgTooManyActions     = "this session has recorded too many actions, please start over"
	ErrMsgDisqualifiedNotice = "Based on your answers we cannot offer a cannabis therapy. Please talk to your general practitioner."
)

// ActionError is returned when the state machine refuses an action.
type ActionError struct {
	Code    StatusCode
	Message string
}

func (e *ActionError) Error() string {
	return e.Message
}

// NewInvalidArgument reports a malformed action.
func NewInvalidArgument(message string) *ActionError {
	return &ActionError{Code: StatusInvalidArgument, Message: message}
}

// NewFailedPrecondition reports an action the current state does not allow.
func NewFailedPrecondition(message string) *ActionError {
	return &ActionError{Code: StatusFailedPrecondition, Message: message}
}

// NewFailedPreconditionf formats a failed precondition message.
func NewFailedPreconditionf(format string, args ...interface{}) *ActionError {
	return &ActionError{Code: StatusFailedPrecondition, Message: fmt.Sprintf(format, args...)}
}

// ErrSessionNotFound is returned by stores for unknown session IDs.
var ErrSessionNotFound = &ActionError{Code: StatusNotFound, Message: "session not found"}

// CodeOf returns the status code carried by err, if any.
func CodeOf(err error) (StatusCode, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return 0, false
}
