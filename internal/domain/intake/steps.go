package intake

import (
	"math"
	"strings"
)

// StepID names a wizard step.
type StepID string

const (
	StepProducts   StepID = "products"
	StepTreatment  StepID = "treatment"
	StepExclusion  StepID = "exclusion"
	StepDelivery   StepID = "delivery"
	StepConsent    StepID = "consent"
	StepSymptoms   StepID = "symptoms"
	StepTherapies  StepID = "therapies"
	StepConditions StepID = "conditions"
	StepExperience StepID = "experience"
	StepFeedback   StepID = "feedback"
	StepCheckout   StepID = "checkout"
	StepCompletion StepID = "completion"
)

// Guard returns nil when the step's answers allow moving forward.
type Guard func(State) error

// Step is one row of the step table.
type Step struct {
	ID    StepID
	Title string
	Guard Guard
}

// Table is the ordered list of steps. The feedback step stands in for the
// experience step while a session has skipped the questionnaire.
type Table struct {
	rows     []Step
	feedback Step
	index    map[StepID]int
}

// NewTable builds a step table. feedback replaces the row named by replaces.
func NewTable(rows []Step, feedback Step, replaces StepID) *Table {
	t := &Table{rows: rows, feedback: feedback, index: make(map[StepID]int, len(rows)+1)}
	for i, r := range rows {
		t.index[r.ID] = i
	}
	if i, ok := t.index[replaces]; ok {
		t.index[feedback.ID] = i
	}
	return t
}

// DefaultTable returns the intake flow.
func DefaultTable() *Table {
	return NewTable([]Step{
		{ID: StepProducts, Title: "Products & pharmacy", Guard: guardProducts},
		{ID: StepTreatment, Title: "Treatment type", Guard: guardTreatment},
		{ID: StepExclusion, Title: "Exclusion criteria", Guard: guardExclusion},
		{ID: StepDelivery, Title: "Delivery", Guard: guardDelivery},
		{ID: StepConsent, Title: "Consent", Guard: guardConsent},
		{ID: StepSymptoms, Title: "Symptoms", Guard: guardSymptoms},
		{ID: StepTherapies, Title: "Previous therapies", Guard: guardTherapies},
		{ID: StepConditions, Title: "Conditions & medication", Guard: guardConditions},
		{ID: StepExperience, Title: "Cannabis experience", Guard: guardExperience},
		{ID: StepCheckout, Title: "Checkout", Guard: guardCheckout},
		{ID: StepCompletion, Title: "Done"},
	}, Step{ID: StepFeedback, Title: "Therapy feedback", Guard: guardFeedback}, StepExperience)
}

// Total is the highest step index.
func (t *Table) Total() int { return len(t.rows) - 1 }

// Index returns the position of a step.
func (t *Table) Index(id StepID) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

// At returns the step rendered at index i for the given skip flag.
func (t *Table) At(i int, skipToFeedback bool) Step {
	if i < 0 {
		i = 0
	}
	if i > t.Total() {
		i = t.Total()
	}
	if skipToFeedback && i == t.Index(StepFeedback) {
		return t.feedback
	}
	return t.rows[i]
}

// Active returns the step for s. Exactly one step is active for every index.
func (t *Table) Active(s State) Step {
	return t.At(s.StepIndex, s.SkipToFeedback)
}

// Progress returns the completion percentage for s.
func (t *Table) Progress(s State) int {
	return int(math.Round(float64(s.StepIndex) / float64(t.Total()) * 100))
}

// Steps returns the rows in order.
func (t *Table) Steps() []Step {
	out := make([]Step, len(t.rows))
	copy(out, t.rows)
	return out
}

func guardProducts(s State) error {
	if s.Selection.Empty() {
		return NewFailedPrecondition(ErrMsgSelectionEmpty)
	}
	return nil
}

func guardTreatment(s State) error {
	switch s.Answers.Treatment {
	case TreatmentInitial, TreatmentFollowUp:
		return nil
	}
	return NewFailedPrecondition(ErrMsgTreatmentRequired)
}

func guardExclusion(s State) error {
	e := s.Answers.Exclusion
	if !e.IsOver21.Answered() || !e.PregnantOrNursing.Answered() ||
		!e.PsychoticDisorder.Answered() || !e.SevereHeartDisease.Answered() {
		return NewFailedPrecondition(ErrMsgExclusionOpen)
	}
	return nil
}

func guardDelivery(s State) error {
	d := s.Answers.Delivery
	switch d.Method {
	case DeliveryPickup:
		return nil
	case DeliveryShipping:
		if !d.Address.Complete() {
			return NewFailedPrecondition(ErrMsgAddressIncomplete)
		}
		return nil
	}
	return NewFailedPrecondition(ErrMsgDeliveryRequired)
}

func guardConsent(s State) error {
	if !s.Answers.Consent.All() {
		return NewFailedPrecondition(ErrMsgConsentMissing)
	}
	return nil
}

func guardSymptoms(s State) error {
	sy := s.Answers.Symptoms
	if !sy.Groups.Any() {
		return NewFailedPrecondition(ErrMsgSymptomRequired)
	}
	if sy.Groups.Other && strings.TrimSpace(sy.OtherText) == "" {
		return NewFailedPrecondition(ErrMsgOtherSymptomText)
	}
	if sy.Intensity < 1 || sy.Intensity > 10 {
		return NewFailedPrecondition(ErrMsgIntensityRange)
	}
	return nil
}

func guardTherapies(s State) error {
	if !s.Answers.Therapies.Any() {
		return NewFailedPrecondition(ErrMsgTherapyRequired)
	}
	return nil
}

func guardConditions(s State) error {
	c := s.Answers.Conditions
	if !c.TakesMedication.Answered() {
		return NewFailedPrecondition(ErrMsgMedicationOpen)
	}
	if c.TakesMedication == Yes && strings.TrimSpace(c.Medications) == "" {
		return NewFailedPrecondition(ErrMsgMedicationList)
	}
	return nil
}

func guardExperience(s State) error {
	if !s.Answers.Experience.HasUsedCannabis.Answered() {
		return NewFailedPrecondition(ErrMsgExperienceOpen)
	}
	return nil
}

func guardFeedback(s State) error {
	if r := s.Answers.Feedback.Satisfaction; r < 1 || r > 5 {
		return NewFailedPrecondition(ErrMsgSatisfactionRange)
	}
	return nil
}

func guardCheckout(s State) error {
	c := s.Answers.Checkout
	if !c.PaymentMethod.Valid() {
		return NewFailedPrecondition(ErrMsgPaymentRequired)
	}
	if !c.Confirmed {
		return NewFailedPrecondition(ErrMsgOrderNotConfirmed)
	}
	return nil
}
