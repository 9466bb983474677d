package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// screen is the form of one step. actions turns the bound values into the
// answer actions for the step; again reports whether the step should be shown
// once more instead of advancing.
type screen struct {
	step    intake.StepID
	form    *huh.Form
	actions func() []intake.Action
	again   func() bool
}

func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithShowHelp(false).
		WithShowErrors(true)
}

// newScreen builds the screen for the active step of p. Terminal states have no screen.
func newScreen(p Props) *screen {
	if p.State.Terminal() {
		return nil
	}
	switch p.View.Step {
	case intake.StepProducts:
		return newProductsScreen(p)
	case intake.StepTreatment:
		return newTreatmentScreen(p)
	case intake.StepExclusion:
		return newExclusionScreen(p)
	case intake.StepDelivery:
		return newDeliveryScreen(p)
	case intake.StepConsent:
		return newConsentScreen(p)
	case intake.StepSymptoms:
		return newSymptomsScreen(p)
	case intake.StepTherapies:
		return newTherapiesScreen(p)
	case intake.StepConditions:
		return newConditionsScreen(p)
	case intake.StepExperience:
		return newExperienceScreen(p)
	case intake.StepFeedback:
		return newFeedbackScreen(p)
	case intake.StepCheckout:
		return newCheckoutScreen(p)
	}
	return nil
}

// Shared field helpers

var errRequired = errors.New("please choose an answer")

func triValue(t intake.Tri) string {
	if t.Answered() {
		return t.String()
	}
	return ""
}

func parseTri(s string) intake.Tri {
	switch s {
	case "yes":
		return intake.Yes
	case "no":
		return intake.No
	}
	return intake.Unanswered
}

func yesNo(title string, value *string) *huh.Select[string] {
	return huh.NewSelect[string]().
		Title(title).
		Options(
			huh.NewOption("Yes", "yes"),
			huh.NewOption("No", "no"),
		).
		Value(value).
		Validate(func(s string) error {
			if s == "" {
				return errRequired
			}
			return nil
		})
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func intInRange(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("please enter a whole number")
		}
		if n < min || n > max {
			return fmt.Errorf("please enter a number between %d and %d", min, max)
		}
		return nil
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// checkbox maps one multi-select option onto a bool field of T.
type checkbox[T any] struct {
	key   string
	label string
	field func(*T) *bool
}

func checkedKeys[T any](boxes []checkbox[T], v T) []string {
	var keys []string
	for _, b := range boxes {
		if *b.field(&v) {
			keys = append(keys, b.key)
		}
	}
	return keys
}

// fromChecked sets every box field of base from keys and leaves other fields alone.
func fromChecked[T any](boxes []checkbox[T], keys []string, base T) T {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	for _, b := range boxes {
		*b.field(&base) = set[b.key]
	}
	return base
}

func checkboxOptions[T any](boxes []checkbox[T], selected []string) []huh.Option[string] {
	set := make(map[string]bool, len(selected))
	for _, k := range selected {
		set[k] = true
	}
	opts := make([]huh.Option[string], 0, len(boxes))
	for _, b := range boxes {
		opts = append(opts, huh.NewOption(b.label, b.key).Selected(set[b.key]))
	}
	return opts
}

// Products

type productsForm struct {
	choice   string // pharmacyID/productID
	quantity string
	more     bool
}

func (f *productsForm) actions() []intake.Action {
	pharmacyID, productID, ok := strings.Cut(f.choice, "/")
	if !ok {
		return nil
	}
	return []intake.Action{intake.SelectProduct{
		ProductID:  productID,
		PharmacyID: pharmacyID,
		Quantity:   atoi(f.quantity),
	}}
}

func productOptions(cat *catalog.Snapshot) []huh.Option[string] {
	var opts []huh.Option[string]
	for _, ph := range cat.Pharmacies() {
		for _, p := range cat.ProductsAt(ph.ID) {
			price := "price on request"
			if unit, ok := p.UnitPrice(); ok {
				price = unit.Display() + "/" + p.Kind.Unit()
			}
			label := fmt.Sprintf("%s (%s, THC %.1f%%) at %s, %s", p.Name, p.Kind, p.THCPercent, ph.Name, price)
			opts = append(opts, huh.NewOption(label, ph.ID+"/"+p.ID))
		}
	}
	return opts
}

func selectionSummary(p Props) string {
	if p.Quote == nil || len(p.Quote.Lines) == 0 {
		return "Nothing selected yet."
	}
	var b strings.Builder
	for _, l := range p.Quote.Lines {
		fmt.Fprintf(&b, "%d %s %s = %s\n", l.Quantity, l.Unit, l.Name, l.Total.Display())
	}
	fmt.Fprintf(&b, "Subtotal %s", p.Quote.Subtotal.Display())
	return b.String()
}

func newProductsScreen(p Props) *screen {
	f := &productsForm{quantity: "1"}
	form := newForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Your selection").
				Description(selectionSummary(p)),
			huh.NewSelect[string]().
				Key("product").
				Title("Product and pharmacy").
				Options(productOptions(p.Catalog)...).
				Value(&f.choice),
			huh.NewInput().
				Key("quantity").
				Title("Quantity (0 removes the product)").
				Value(&f.quantity).
				Validate(intInRange(0, 100)),
			huh.NewConfirm().
				Key("more").
				Title("Add another product?").
				Affirmative("Yes").
				Negative("No, continue").
				Value(&f.more),
		),
	)
	return &screen{step: intake.StepProducts, form: form, actions: f.actions, again: func() bool { return f.more }}
}

// Treatment

type treatmentForm struct {
	treatment string
}

func (f *treatmentForm) actions() []intake.Action {
	return []intake.Action{intake.SetTreatment{Treatment: intake.TreatmentType(f.treatment)}}
}

func newTreatmentScreen(p Props) *screen {
	f := &treatmentForm{treatment: string(p.State.Answers.Treatment)}
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("treatment").
				Title("Is this your first cannabis prescription with us?").
				Options(
					huh.NewOption("Yes, first prescription", string(intake.TreatmentInitial)),
					huh.NewOption("No, I need a follow-up prescription", string(intake.TreatmentFollowUp)),
				).
				Value(&f.treatment),
		),
	)
	return &screen{step: intake.StepTreatment, form: form, actions: f.actions}
}

// Exclusion

type exclusionForm struct {
	over21, pregnant, psychotic, heart string
}

func exclusionFormOf(e intake.Exclusion) *exclusionForm {
	return &exclusionForm{
		over21:    triValue(e.IsOver21),
		pregnant:  triValue(e.PregnantOrNursing),
		psychotic: triValue(e.PsychoticDisorder),
		heart:     triValue(e.SevereHeartDisease),
	}
}

func (f *exclusionForm) actions() []intake.Action {
	return []intake.Action{intake.SetExclusion{Exclusion: intake.Exclusion{
		IsOver21:           parseTri(f.over21),
		PregnantOrNursing:  parseTri(f.pregnant),
		PsychoticDisorder:  parseTri(f.psychotic),
		SevereHeartDisease: parseTri(f.heart),
	}}}
}

func newExclusionScreen(p Props) *screen {
	f := exclusionFormOf(p.State.Answers.Exclusion)
	form := newForm(
		huh.NewGroup(
			yesNo("Are you 21 or older?", &f.over21),
			yesNo("Are you pregnant or breastfeeding?", &f.pregnant),
			yesNo("Have you ever been diagnosed with a psychotic disorder?", &f.psychotic),
			yesNo("Do you have a severe heart disease?", &f.heart),
		),
	)
	return &screen{step: intake.StepExclusion, form: form, actions: f.actions}
}

// Delivery

type deliveryForm struct {
	method                         string
	name, street, postalCode, city string
}

func deliveryFormOf(d intake.Delivery) *deliveryForm {
	return &deliveryForm{
		method:     string(d.Method),
		name:       d.Address.Name,
		street:     d.Address.Street,
		postalCode: d.Address.PostalCode,
		city:       d.Address.City,
	}
}

func (f *deliveryForm) actions() []intake.Action {
	d := intake.Delivery{Method: intake.DeliveryMethod(f.method)}
	if d.Method == intake.DeliveryShipping {
		d.Address = intake.Address{
			Name:       strings.TrimSpace(f.name),
			Street:     strings.TrimSpace(f.street),
			PostalCode: strings.TrimSpace(f.postalCode),
			City:       strings.TrimSpace(f.city),
		}
	}
	return []intake.Action{intake.SetDelivery{Delivery: d}}
}

func newDeliveryScreen(p Props) *screen {
	f := deliveryFormOf(p.State.Answers.Delivery)
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("method").
				Title("How would you like to receive your medication?").
				Options(
					huh.NewOption("Shipping to my address", string(intake.DeliveryShipping)),
					huh.NewOption("Pickup at the pharmacy", string(intake.DeliveryPickup)),
				).
				Value(&f.method),
		),
		huh.NewGroup(
			huh.NewInput().Key("name").Title("Full name").Value(&f.name).Validate(required("name")),
			huh.NewInput().Key("street").Title("Street and number").Value(&f.street).Validate(required("street")),
			huh.NewInput().Key("postal_code").Title("Postal code").Value(&f.postalCode).Validate(required("postal code")),
			huh.NewInput().Key("city").Title("City").Value(&f.city).Validate(required("city")),
		).WithHideFunc(func() bool {
			return f.method != string(intake.DeliveryShipping)
		}),
	)
	return &screen{step: intake.StepDelivery, form: form, actions: f.actions}
}

// Consent

var consentBoxes = []checkbox[intake.Consent]{
	{"terms", "I accept the terms of service", func(c *intake.Consent) *bool { return &c.Terms }},
	{"privacy", "I consent to the processing of my health data", func(c *intake.Consent) *bool { return &c.Privacy }},
	{"telemedicine", "I agree to a remote consultation", func(c *intake.Consent) *bool { return &c.Telemedicine }},
	{"truthful", "My answers are complete and truthful", func(c *intake.Consent) *bool { return &c.TruthfulInfo }},
}

type consentForm struct {
	accepted []string
}

func (f *consentForm) actions() []intake.Action {
	return []intake.Action{intake.SetConsent{Consent: fromChecked(consentBoxes, f.accepted, intake.Consent{})}}
}

func newConsentScreen(p Props) *screen {
	f := &consentForm{accepted: checkedKeys(consentBoxes, p.State.Answers.Consent)}
	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("consent").
				Title("Declarations").
				Description("All declarations are required.").
				Options(checkboxOptions(consentBoxes, f.accepted)...).
				Value(&f.accepted).
				Validate(func(keys []string) error {
					if len(keys) != len(consentBoxes) {
						return errors.New("please accept every declaration")
					}
					return nil
				}),
		),
	)
	return &screen{step: intake.StepConsent, form: form, actions: f.actions}
}

// Symptoms

var symptomBoxes = []checkbox[intake.SymptomGroup]{
	{"chronic_pain", "Chronic pain", func(g *intake.SymptomGroup) *bool { return &g.ChronicPain }},
	{"migraine", "Migraine", func(g *intake.SymptomGroup) *bool { return &g.Migraine }},
	{"sleep_disorder", "Sleep disorder", func(g *intake.SymptomGroup) *bool { return &g.SleepDisorder }},
	{"anxiety", "Anxiety", func(g *intake.SymptomGroup) *bool { return &g.Anxiety }},
	{"adhd", "ADHD", func(g *intake.SymptomGroup) *bool { return &g.ADHD }},
	{"appetite_loss", "Loss of appetite", func(g *intake.SymptomGroup) *bool { return &g.AppetiteLoss }},
	{"spasticity", "Spasticity", func(g *intake.SymptomGroup) *bool { return &g.Spasticity }},
	{"other", "Other", func(g *intake.SymptomGroup) *bool { return &g.Other }},
}

type symptomsForm struct {
	groups      []string
	otherText   string
	intensity   string
	duration    string
	description string
}

func symptomsFormOf(s intake.Symptoms) *symptomsForm {
	return &symptomsForm{
		groups:      checkedKeys(symptomBoxes, s.Groups),
		otherText:   s.OtherText,
		intensity:   itoa(s.Intensity),
		duration:    itoa(s.DurationMonths),
		description: s.Description,
	}
}

func (f *symptomsForm) actions() []intake.Action {
	groups := fromChecked(symptomBoxes, f.groups, intake.SymptomGroup{})
	s := intake.Symptoms{
		Groups:         groups,
		Intensity:      atoi(f.intensity),
		DurationMonths: atoi(f.duration),
		Description:    strings.TrimSpace(f.description),
	}
	if groups.Other {
		s.OtherText = strings.TrimSpace(f.otherText)
	}
	return []intake.Action{intake.SetSymptoms{Symptoms: s}}
}

func (f *symptomsForm) hasOther() bool {
	for _, g := range f.groups {
		if g == "other" {
			return true
		}
	}
	return false
}

func newSymptomsScreen(p Props) *screen {
	f := symptomsFormOf(p.State.Answers.Symptoms)
	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("groups").
				Title("What are your main complaints?").
				Options(checkboxOptions(symptomBoxes, f.groups)...).
				Value(&f.groups).
				Validate(func(keys []string) error {
					if len(keys) == 0 {
						return errors.New("please select at least one complaint")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().Key("other_text").Title("Describe the other complaint").Value(&f.otherText).Validate(required("description")),
		).WithHideFunc(func() bool { return !f.hasOther() }),
		huh.NewGroup(
			huh.NewInput().Key("intensity").Title("Intensity (1 to 10)").Value(&f.intensity).Validate(intInRange(1, 10)),
			huh.NewInput().Key("duration").Title("Since how many months?").Value(&f.duration).Validate(intInRange(0, 1200)),
			huh.NewText().Key("description").Title("Anything else your doctor should know?").Value(&f.description),
		),
	)
	return &screen{step: intake.StepSymptoms, form: form, actions: f.actions}
}

// Therapies

var therapyBoxes = []checkbox[intake.Therapies]{
	{"painkillers", "Painkillers", func(t *intake.Therapies) *bool { return &t.Painkillers }},
	{"antidepressants", "Antidepressants", func(t *intake.Therapies) *bool { return &t.Antidepressants }},
	{"physiotherapy", "Physiotherapy", func(t *intake.Therapies) *bool { return &t.Physiotherapy }},
	{"psychotherapy", "Psychotherapy", func(t *intake.Therapies) *bool { return &t.Psychotherapy }},
	{"sleep_medication", "Sleep medication", func(t *intake.Therapies) *bool { return &t.SleepMedication }},
	{"none", "None of these", func(t *intake.Therapies) *bool { return &t.None }},
}

type therapiesForm struct {
	tried []string
	notes string
}

func (f *therapiesForm) actions() []intake.Action {
	t := fromChecked(therapyBoxes, f.tried, intake.Therapies{})
	t.Notes = strings.TrimSpace(f.notes)
	return []intake.Action{intake.SetTherapies{Therapies: t}}
}

func newTherapiesScreen(p Props) *screen {
	prev := p.State.Answers.Therapies
	f := &therapiesForm{tried: checkedKeys(therapyBoxes, prev), notes: prev.Notes}
	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("tried").
				Title("Which treatments have you tried?").
				Options(checkboxOptions(therapyBoxes, f.tried)...).
				Value(&f.tried).
				Validate(func(keys []string) error {
					if len(keys) == 0 {
						return errors.New(`please select at least one option or "None of these"`)
					}
					return nil
				}),
			huh.NewText().Key("notes").Title("Notes").Value(&f.notes),
		),
	)
	return &screen{step: intake.StepTherapies, form: form, actions: f.actions}
}

// Conditions

var conditionBoxes = []checkbox[intake.Conditions]{
	{"cardiovascular", "Cardiovascular disease", func(c *intake.Conditions) *bool { return &c.Cardiovascular }},
	{"liver", "Liver disease", func(c *intake.Conditions) *bool { return &c.Liver }},
	{"kidney", "Kidney disease", func(c *intake.Conditions) *bool { return &c.Kidney }},
	{"psychiatric", "Psychiatric condition", func(c *intake.Conditions) *bool { return &c.Psychiatric }},
	{"addiction", "Substance addiction", func(c *intake.Conditions) *bool { return &c.Addiction }},
}

type conditionsForm struct {
	conditions  []string
	medication  string
	medications string
	allergies   string
}

func conditionsFormOf(c intake.Conditions) *conditionsForm {
	return &conditionsForm{
		conditions:  checkedKeys(conditionBoxes, c),
		medication:  triValue(c.TakesMedication),
		medications: c.Medications,
		allergies:   c.Allergies,
	}
}

func (f *conditionsForm) actions() []intake.Action {
	c := fromChecked(conditionBoxes, f.conditions, intake.Conditions{})
	c.TakesMedication = parseTri(f.medication)
	if c.TakesMedication == intake.Yes {
		c.Medications = strings.TrimSpace(f.medications)
	}
	c.Allergies = strings.TrimSpace(f.allergies)
	return []intake.Action{intake.SetConditions{Conditions: c}}
}

func newConditionsScreen(p Props) *screen {
	f := conditionsFormOf(p.State.Answers.Conditions)
	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("conditions").
				Title("Do any of these apply to you?").
				Description("Leave empty if none apply.").
				Options(checkboxOptions(conditionBoxes, f.conditions)...).
				Value(&f.conditions),
			yesNo("Do you take any medication regularly?", &f.medication),
		),
		huh.NewGroup(
			huh.NewText().Key("medications").Title("Which medication, and how much?").Value(&f.medications).Validate(required("medication list")),
		).WithHideFunc(func() bool { return f.medication != "yes" }),
		huh.NewGroup(
			huh.NewInput().Key("allergies").Title("Allergies").Value(&f.allergies),
		),
	)
	return &screen{step: intake.StepConditions, form: form, actions: f.actions}
}

// Experience

type experienceForm struct {
	used        string
	frequency   string
	kind        string
	sideEffects string
}

func experienceFormOf(e intake.Experience) *experienceForm {
	return &experienceForm{
		used:        triValue(e.HasUsedCannabis),
		frequency:   e.Frequency,
		kind:        e.PreferredKind,
		sideEffects: e.SideEffects,
	}
}

func (f *experienceForm) actions() []intake.Action {
	e := intake.Experience{HasUsedCannabis: parseTri(f.used)}
	if e.HasUsedCannabis == intake.Yes {
		e.Frequency = f.frequency
		e.PreferredKind = f.kind
		e.SideEffects = strings.TrimSpace(f.sideEffects)
	}
	return []intake.Action{intake.SetExperience{Experience: e}}
}

func newExperienceScreen(p Props) *screen {
	f := experienceFormOf(p.State.Answers.Experience)
	form := newForm(
		huh.NewGroup(
			yesNo("Have you used cannabis before?", &f.used),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("frequency").
				Title("How often?").
				Options(huh.NewOptions("daily", "weekly", "occasionally")...).
				Value(&f.frequency),
			huh.NewSelect[string]().
				Key("kind").
				Title("Which form do you prefer?").
				Options(
					huh.NewOption("Dried flower", string(catalog.KindFlower)),
					huh.NewOption("Extract", string(catalog.KindExtract)),
				).
				Value(&f.kind),
			huh.NewInput().Key("side_effects").Title("Side effects you noticed").Value(&f.sideEffects),
		).WithHideFunc(func() bool { return f.used != "yes" }),
	)
	return &screen{step: intake.StepExperience, form: form, actions: f.actions}
}

// Feedback

type feedbackForm struct {
	satisfaction string
	improved     string
	sideEffects  string
	doseChange   string
	comments     string
}

func feedbackFormOf(fb intake.Feedback) *feedbackForm {
	return &feedbackForm{
		satisfaction: itoa(fb.Satisfaction),
		improved:     triValue(fb.SymptomsImprove),
		sideEffects:  triValue(fb.SideEffects),
		doseChange:   triValue(fb.WantsDoseChange),
		comments:     fb.Comments,
	}
}

func (f *feedbackForm) actions() []intake.Action {
	return []intake.Action{intake.SetFeedback{Feedback: intake.Feedback{
		Satisfaction:    atoi(f.satisfaction),
		SymptomsImprove: parseTri(f.improved),
		SideEffects:     parseTri(f.sideEffects),
		WantsDoseChange: parseTri(f.doseChange),
		Comments:        strings.TrimSpace(f.comments),
	}}}
}

func newFeedbackScreen(p Props) *screen {
	f := feedbackFormOf(p.State.Answers.Feedback)
	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("satisfaction").
				Title("How satisfied are you with your current therapy?").
				Options(
					huh.NewOption("1 - not at all", "1"),
					huh.NewOption("2", "2"),
					huh.NewOption("3", "3"),
					huh.NewOption("4", "4"),
					huh.NewOption("5 - very satisfied", "5"),
				).
				Value(&f.satisfaction).
				Validate(intInRange(1, 5)),
			yesNo("Have your symptoms improved?", &f.improved),
			yesNo("Did you notice side effects?", &f.sideEffects),
			yesNo("Would you like to change the dose?", &f.doseChange),
			huh.NewText().Key("comments").Title("Comments").Value(&f.comments),
		),
	)
	return &screen{step: intake.StepFeedback, form: form, actions: f.actions}
}

// Checkout

type checkoutForm struct {
	payment   string
	confirmed bool
}

func (f *checkoutForm) actions() []intake.Action {
	return []intake.Action{intake.SetCheckout{Checkout: intake.Checkout{
		PaymentMethod: intake.PaymentMethod(f.payment),
		Confirmed:     f.confirmed,
	}}}
}

func quoteSummary(q *pricing.Quote) string {
	if q == nil {
		return "No price available."
	}
	var b strings.Builder
	for _, l := range q.Lines {
		fmt.Fprintf(&b, "%d %s %s x %s = %s", l.Quantity, l.Unit, l.Name, l.UnitPrice.Display(), l.Total.Display())
		if l.Fallback {
			b.WriteString(" (list price pending)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", q.Subtotal.Display())
	fmt.Fprintf(&b, "Prescription fee: %s\n", q.PrescriptionFee.Display())
	fmt.Fprintf(&b, "Shipping: %s\n", q.ShippingFee.Display())
	fmt.Fprintf(&b, "Total: %s", q.GrandTotal.Display())
	return b.String()
}

func newCheckoutScreen(p Props) *screen {
	c := p.State.Answers.Checkout
	f := &checkoutForm{payment: string(c.PaymentMethod), confirmed: c.Confirmed}
	form := newForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Your order").
				Description(quoteSummary(p.Quote)),
			huh.NewSelect[string]().
				Key("payment").
				Title("Payment method").
				Options(
					huh.NewOption("Credit card", string(intake.PaymentCard)),
					huh.NewOption("PayPal", string(intake.PaymentPayPal)),
					huh.NewOption("Invoice", string(intake.PaymentInvoice)),
				).
				Value(&f.payment),
			huh.NewConfirm().
				Key("confirmed").
				Title("Place the order with obligation to pay?").
				Affirmative("Place order").
				Negative("Not yet").
				Value(&f.confirmed),
		),
	)
	return &screen{step: intake.StepCheckout, form: form, actions: f.actions}
}
