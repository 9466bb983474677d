package intake

import (
	"fmt"
	"strings"
)

// Tri is a yes/no answer that may still be unanswered.
type Tri int8

const (
	Unanswered Tri = iota
	Yes
	No
)

// TriOf converts a bool into an answered Tri.
func TriOf(b bool) Tri {
	if b {
		return Yes
	}
	return No
}

// Answered reports whether a choice was made.
func (t Tri) Answered() bool { return t == Yes || t == No }

func (t Tri) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unanswered"
	}
}

// MarshalJSON encodes Tri as true, false or null.
func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false, null, "yes" or "no".
func (t *Tri) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "true", `"yes"`:
		*t = Yes
	case "false", `"no"`:
		*t = No
	case "null", `""`:
		*t = Unanswered
	default:
		return fmt.Errorf("invalid tri-state value %s", b)
	}
	return nil
}

// TreatmentType distinguishes a first prescription from a repeat.
type TreatmentType string

const (
	TreatmentInitial  TreatmentType = "initial"
	TreatmentFollowUp TreatmentType = "follow_up"
)

// DeliveryMethod is how the patient receives the medication.
type DeliveryMethod string

const (
	DeliveryShipping DeliveryMethod = "shipping"
	DeliveryPickup   DeliveryMethod = "pickup"
)

// PaymentMethod is how the order is paid.
type PaymentMethod string

const (
	PaymentCard    PaymentMethod = "card"
	PaymentInvoice PaymentMethod = "invoice"
	PaymentPayPal  PaymentMethod = "paypal"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentInvoice || m == PaymentPayPal
}

// Exclusion holds the medical and legal screening questions.
// IsOver21 = no or PregnantOrNursing = yes ends the intake.
type Exclusion struct {
	IsOver21           Tri `json:"is_over_21"`
	PregnantOrNursing  Tri `json:"pregnant_or_nursing"`
	PsychoticDisorder  Tri `json:"psychotic_disorder"`
	SevereHeartDisease Tri `json:"severe_heart_disease"`
}

// Disqualifies reports whether the answers end the intake.
func (e Exclusion) Disqualifies() bool {
	return e.IsOver21 == No || e.PregnantOrNursing == Yes
}

// Address is a shipping address.
type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
}

// Complete reports whether every field is filled.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Name) != "" && strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.PostalCode) != "" && strings.TrimSpace(a.City) != ""
}

// Delivery holds the delivery choice.
type Delivery struct {
	Method  DeliveryMethod `json:"method"`
	Address Address        `json:"address"`
}

// Consent holds the mandatory declarations.
type Consent struct {
	Terms        bool `json:"terms"`
	Privacy      bool `json:"privacy"`
	Telemedicine bool `json:"telemedicine"`
	TruthfulInfo bool `json:"truthful_info"`
}

// All reports whether every declaration was accepted.
func (c Consent) All() bool {
	return c.Terms && c.Privacy && c.Telemedicine && c.TruthfulInfo
}

// SymptomGroup is a nested checklist of complaints.
type SymptomGroup struct {
	ChronicPain   bool `json:"chronic_pain"`
	Migraine      bool `json:"migraine"`
	SleepDisorder bool `json:"sleep_disorder"`
	Anxiety       bool `json:"anxiety"`
	ADHD          bool `json:"adhd"`
	AppetiteLoss  bool `json:"appetite_loss"`
	Spasticity    bool `json:"spasticity"`
	Other         bool `json:"other"`
}

// Any reports whether at least one box is ticked.
func (g SymptomGroup) Any() bool {
	return g.ChronicPain || g.Migraine || g.SleepDisorder || g.Anxiety ||
		g.ADHD || g.AppetiteLoss || g.Spasticity || g.Other
}

// Symptoms describes the main complaint.
type Symptoms struct {
	Groups         SymptomGroup `json:"groups"`
	OtherText      string       `json:"other_text,omitempty"`
	Intensity      int          `json:"intensity"` // 1..10
	DurationMonths int          `json:"duration_months"`
	Description    string       `json:"description"`
}

// Therapies lists treatments tried before.
type Therapies struct {
	Painkillers     bool   `json:"painkillers"`
	Antidepressants bool   `json:"antidepressants"`
	Physiotherapy   bool   `json:"physiotherapy"`
	Psychotherapy   bool   `json:"psychotherapy"`
	SleepMedication bool   `json:"sleep_medication"`
	None            bool   `json:"none"`
	Notes           string `json:"notes,omitempty"`
}

// Any reports whether at least one option, including none, is ticked.
func (t Therapies) Any() bool {
	return t.Painkillers || t.Antidepressants || t.Physiotherapy || t.Psychotherapy ||
		t.SleepMedication || t.None
}

// Conditions records pre-existing conditions and current medication.
type Conditions struct {
	Cardiovascular  bool   `json:"cardiovascular"`
	Liver           bool   `json:"liver"`
	Kidney          bool   `json:"kidney"`
	Psychiatric     bool   `json:"psychiatric"`
	Addiction       bool   `json:"addiction"`
	TakesMedication Tri    `json:"takes_medication"`
	Medications     string `json:"medications,omitempty"`
	Allergies       string `json:"allergies,omitempty"`
}

// Experience records prior cannabis use.
type Experience struct {
	HasUsedCannabis Tri    `json:"has_used_cannabis"`
	Frequency       string `json:"frequency,omitempty"`
	PreferredKind   string `json:"preferred_kind,omitempty"`
	SideEffects     string `json:"side_effects,omitempty"`
}

// Feedback replaces the questionnaire for returning patients.
type Feedback struct {
	Satisfaction    int    `json:"satisfaction"` // 1..5
	SymptomsImprove Tri    `json:"symptoms_improved"`
	SideEffects     Tri    `json:"side_effects"`
	WantsDoseChange Tri    `json:"wants_dose_change"`
	Comments        string `json:"comments,omitempty"`
}

// Checkout holds the final confirmation.
type Checkout struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Confirmed     bool          `json:"confirmed"`
}

// Answers is the full typed answer set, one slice per step.
type Answers struct {
	Treatment  TreatmentType `json:"treatment"`
	Exclusion  Exclusion     `json:"exclusion"`
	Delivery   Delivery      `json:"delivery"`
	Consent    Consent       `json:"consent"`
	Symptoms   Symptoms      `json:"symptoms"`
	Therapies  Therapies     `json:"therapies"`
	Conditions Conditions    `json:"conditions"`
	Experience Experience    `json:"experience"`
	Feedback   Feedback      `json:"feedback"`
	Checkout   Checkout      `json:"checkout"`
}

// Flags lists answers the reviewing doctor should look at.
func (a Answers) Flags() []string {
	var flags []string
	if a.Exclusion.PsychoticDisorder == Yes {
		flags = append(flags, "history of psychotic disorder")
	}
	if a.Exclusion.SevereHeartDisease == Yes {
		flags = append(flags, "severe heart disease")
	}
	if a.Conditions.Addiction {
		flags = append(flags, "history of addiction")
	}
	if a.Conditions.Psychiatric {
		flags = append(flags, "psychiatric condition")
	}
	if a.Conditions.TakesMedication == Yes {
		flags = append(flags, "concurrent medication")
	}
	return flags
}
