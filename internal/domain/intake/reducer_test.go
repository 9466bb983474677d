package intake

import (
	"testing"

	"github.com/drfirst/go-intake/internal/domain/pricing"
)

func TestExactlyOneActiveStepPerIndex(t *testing.T) {
	table := DefaultTable()
	if table.Total() != 10 {
		t.Fatalf("Total() = %d, want 10", table.Total())
	}
	seen := map[StepID]bool{}
	for i := 0; i <= table.Total(); i++ {
		for _, skip := range []bool{false, true} {
			step := table.Active(State{StepIndex: i, SkipToFeedback: skip})
			if step.ID == "" {
				t.Fatalf("no step at index %d (skip=%v)", i, skip)
			}
			seen[step.ID] = true
			if i == 8 && skip && step.ID != StepFeedback {
				t.Errorf("index 8 with skip flag = %s, want feedback", step.ID)
			}
			if i == 8 && !skip && step.ID != StepExperience {
				t.Errorf("index 8 without skip flag = %s, want experience", step.ID)
			}
		}
	}
	if len(seen) != 12 {
		t.Errorf("distinct steps = %d, want 12", len(seen))
	}
}

func TestProgress(t *testing.T) {
	table := DefaultTable()
	tests := map[int]int{0: 0, 1: 10, 3: 30, 8: 80, 10: 100}
	for idx, want := range tests {
		if got := table.Progress(State{StepIndex: idx}); got != want {
			t.Errorf("Progress(%d) = %d, want %d", idx, got, want)
		}
	}
}

func TestNextRequiresSelection(t *testing.T) {
	r := testReducer(t)
	s := NewState()

	next, err := r.Reduce(s, Next{})
	wantCode(t, err, StatusFailedPrecondition)
	if next.StepIndex != 0 {
		t.Fatalf("StepIndex = %d, want 0", next.StepIndex)
	}

	q, err := r.Quote(s)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Subtotal != 0 || q.GrandTotal != 2499 {
		t.Errorf("empty quote = %s / %s, want 0.00 / 24.99", q.Subtotal, q.GrandTotal)
	}
}

func TestBackAtFirstStepIsRefused(t *testing.T) {
	r := testReducer(t)
	_, err := r.Reduce(NewState(), Back{})
	wantCode(t, err, StatusFailedPrecondition)
}

func TestBackThenNextReturnsToSameIndex(t *testing.T) {
	r := testReducer(t)
	s := NewState()
	for r.Table().Active(s).ID != StepCheckout {
		s = mustReduce(t, r, s, validAnswer(r.Table().Active(s).ID))
		s = mustReduce(t, r, s, Next{})

		idx := s.StepIndex
		back := mustReduce(t, r, s, Back{})
		if back.StepIndex != idx-1 {
			t.Fatalf("Back from %d landed on %d", idx, back.StepIndex)
		}
		again := mustReduce(t, r, back, Next{})
		if again.StepIndex != idx {
			t.Fatalf("Back then Next from %d landed on %d", idx, again.StepIndex)
		}
	}
}

func TestDisqualification(t *testing.T) {
	tests := []struct {
		name      string
		exclusion Exclusion
	}{
		{"under 21 with other answers open", Exclusion{IsOver21: No}},
		{"under 21", Exclusion{IsOver21: No, PregnantOrNursing: No, PsychoticDisorder: No, SevereHeartDisease: No}},
		{"pregnant", Exclusion{IsOver21: Yes, PregnantOrNursing: Yes, PsychoticDisorder: No, SevereHeartDisease: No}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReducer(t)
			s := walkTo(t, r, NewState(), StepExclusion)
			s = mustReduce(t, r, s, SetExclusion{Exclusion: tt.exclusion})
			s = mustReduce(t, r, s, Next{})

			if s.Outcome != OutcomeRejected {
				t.Fatalf("Outcome = %s, want rejected", s.Outcome)
			}
			if s.Redirect != DisqualifiedRedirect || s.Notice == "" {
				t.Errorf("Redirect = %q, Notice = %q", s.Redirect, s.Notice)
			}
			if s.StepIndex != r.Table().Index(StepExclusion) {
				t.Errorf("StepIndex = %d, want exclusion index", s.StepIndex)
			}
			for _, a := range []Action{Next{}, Back{}, SkipToFeedback{}, SetExclusion{}} {
				_, err := r.Reduce(s, a)
				wantCode(t, err, StatusFailedPrecondition)
			}
		})
	}
}

func TestExclusionNeedsEveryAnswer(t *testing.T) {
	r := testReducer(t)
	s := walkTo(t, r, NewState(), StepExclusion)
	s = mustReduce(t, r, s, SetExclusion{Exclusion: Exclusion{IsOver21: Yes, PregnantOrNursing: No}})

	next, err := r.Reduce(s, Next{})
	wantCode(t, err, StatusFailedPrecondition)
	if next.Outcome != OutcomeInProgress {
		t.Fatalf("Outcome = %s, want in_progress", next.Outcome)
	}
}

func TestSkipToFeedback(t *testing.T) {
	r := testReducer(t)
	s := walkTo(t, r, NewState(), StepDelivery)

	s = mustReduce(t, r, s, SkipToFeedback{})
	if !s.SkipToFeedback || s.StepIndex != 8 {
		t.Fatalf("after skip: flag=%v index=%d", s.SkipToFeedback, s.StepIndex)
	}
	if got := r.Table().Active(s).ID; got != StepFeedback {
		t.Fatalf("active = %s, want feedback", got)
	}

	// Experience answers belong to a step that is not rendered.
	_, err := r.Reduce(s, validAnswer(StepExperience))
	wantCode(t, err, StatusFailedPrecondition)

	_, err = r.Reduce(s, Next{})
	wantCode(t, err, StatusFailedPrecondition)

	s = mustReduce(t, r, s, validAnswer(StepFeedback))
	s = mustReduce(t, r, s, Next{})
	if got := r.Table().Active(s).ID; got != StepCheckout {
		t.Fatalf("active = %s, want checkout", got)
	}
}

func TestSkipBoundaries(t *testing.T) {
	r := testReducer(t)

	atExclusion := walkTo(t, r, NewState(), StepExclusion)
	_, err := r.Reduce(atExclusion, SkipToFeedback{})
	wantCode(t, err, StatusFailedPrecondition)

	atCheckout := walkTo(t, r, NewState(), StepCheckout)
	_, err = r.Reduce(atCheckout, SkipToFeedback{})
	wantCode(t, err, StatusFailedPrecondition)

	atExperience := walkTo(t, r, NewState(), StepExperience)
	s := mustReduce(t, r, atExperience, SkipToFeedback{})
	if s.StepIndex != 8 || !s.SkipToFeedback {
		t.Fatalf("skip at experience: index=%d flag=%v", s.StepIndex, s.SkipToFeedback)
	}
}

func TestAnswersOnlyForActiveStep(t *testing.T) {
	r := testReducer(t)
	_, err := r.Reduce(NewState(), validAnswer(StepSymptoms))
	wantCode(t, err, StatusFailedPrecondition)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	r := testReducer(t)
	s := NewState()
	s = mustReduce(t, r, s, SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 1})

	next := mustReduce(t, r, s, SelectProduct{ProductID: "p2", PharmacyID: "ph1", Quantity: 2})
	if len(s.Selection) != 1 {
		t.Fatalf("input selection changed: %v", s.Selection)
	}
	if len(next.Selection) != 2 {
		t.Fatalf("next selection = %v", next.Selection)
	}

	removed := mustReduce(t, r, next, SelectProduct{ProductID: "p1", Quantity: 0})
	if _, ok := removed.Selection["p1"]; ok {
		t.Error("quantity 0 should remove the product")
	}
	if _, ok := next.Selection["p1"]; !ok {
		t.Error("removal changed the previous selection")
	}
}

func TestSelectProductValidation(t *testing.T) {
	r := testReducer(t)
	tests := []struct {
		name   string
		action SelectProduct
	}{
		{"unknown product", SelectProduct{ProductID: "nope", PharmacyID: "ph1", Quantity: 1}},
		{"unknown pharmacy", SelectProduct{ProductID: "p1", PharmacyID: "nope", Quantity: 1}},
		{"not stocked", SelectProduct{ProductID: "p9", PharmacyID: "ph1", Quantity: 1}},
		{"negative", SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: -1}},
		{"above limit", SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 101}},
		{"overflowing", SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 7378697629483821}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Reduce(NewState(), tt.action)
			wantCode(t, err, StatusInvalidArgument)
		})
	}
}

func TestQuantityLimitKeepsTotalsPositive(t *testing.T) {
	r := testReducer(t)
	s := mustReduce(t, r, NewState(), SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 100})

	_, err := r.Reduce(s, SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 7378697629483821})
	wantCode(t, err, StatusInvalidArgument)

	v := r.Describe("sess", s)
	if v.Quote == nil || v.Quote.GrandTotal <= v.Quote.Subtotal {
		t.Fatalf("quote = %+v, want a positive grand total above the subtotal", v.Quote)
	}
	if got := v.Selection.Items()[0].Quantity; got != 100 {
		t.Errorf("quantity = %d, want 100", got)
	}
}

func TestStrictPolicyRefusesUnpricedProducts(t *testing.T) {
	pol := pricing.DefaultPolicy()
	pol.Strict = true
	r := NewReducer(DefaultTable(), testCatalog(t), pol)

	_, err := r.Reduce(NewState(), SelectProduct{ProductID: "p3", PharmacyID: "ph1", Quantity: 1})
	wantCode(t, err, StatusInvalidArgument)

	lenient := testReducer(t)
	s := mustReduce(t, lenient, NewState(), SelectProduct{ProductID: "p3", PharmacyID: "ph1", Quantity: 2})
	q, _ := lenient.Quote(s)
	if q.Subtotal != 2500 {
		t.Errorf("fallback subtotal = %s, want 25.00", q.Subtotal)
	}
}

func TestCheckoutSubmission(t *testing.T) {
	r := testReducer(t)
	s := walkTo(t, r, NewState(), StepCheckout)

	_, err := r.Reduce(s, Next{})
	wantCode(t, err, StatusFailedPrecondition)

	s = mustReduce(t, r, s, validAnswer(StepCheckout))
	submitting := mustReduce(t, r, s, Next{})
	if !submitting.Submitting || submitting.StepIndex != s.StepIndex {
		t.Fatalf("Next at checkout: submitting=%v index=%d", submitting.Submitting, submitting.StepIndex)
	}
	for _, a := range []Action{Next{}, Back{}, validAnswer(StepCheckout)} {
		_, err := r.Reduce(submitting, a)
		wantCode(t, err, StatusFailedPrecondition)
	}

	failed := mustReduce(t, r, submitting, SubmitFailed{Reason: "gateway timeout"})
	if failed.Submitting || failed.LastError != "gateway timeout" || failed.StepIndex != 9 {
		t.Fatalf("after failure: %+v", failed)
	}

	_, err = r.Reduce(submitting, SubmitSucceeded{})
	wantCode(t, err, StatusInvalidArgument)

	done := mustReduce(t, r, submitting, SubmitSucceeded{OrderID: "o-1"})
	if done.StepIndex != 10 || done.Outcome != OutcomeCompleted || done.OrderID != "o-1" {
		t.Fatalf("after success: %+v", done)
	}
	_, err = r.Reduce(done, Back{})
	wantCode(t, err, StatusFailedPrecondition)
}

func TestSubmitResultWithoutSubmission(t *testing.T) {
	r := testReducer(t)
	_, err := r.Reduce(NewState(), SubmitSucceeded{OrderID: "x"})
	wantCode(t, err, StatusFailedPrecondition)
	_, err = r.Reduce(NewState(), SubmitFailed{})
	wantCode(t, err, StatusFailedPrecondition)
}

func TestGuards(t *testing.T) {
	r := testReducer(t)
	tests := []struct {
		name   string
		step   StepID
		action Action
	}{
		{"shipping without address", StepDelivery, SetDelivery{Delivery: Delivery{Method: DeliveryShipping}}},
		{"consent partial", StepConsent, SetConsent{Consent: Consent{Terms: true, Privacy: true}}},
		{"symptom intensity missing", StepSymptoms, SetSymptoms{Symptoms: Symptoms{Groups: SymptomGroup{Migraine: true}}}},
		{"other symptom without text", StepSymptoms, SetSymptoms{Symptoms: Symptoms{Groups: SymptomGroup{Other: true}, Intensity: 3}}},
		{"no therapy ticked", StepTherapies, SetTherapies{Therapies: Therapies{Notes: "n/a"}}},
		{"medication not listed", StepConditions, SetConditions{Conditions: Conditions{TakesMedication: Yes}}},
		{"experience open", StepExperience, SetExperience{Experience: Experience{Frequency: "weekly"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := walkTo(t, r, NewState(), tt.step)
			s = mustReduce(t, r, s, tt.action)
			_, err := r.Reduce(s, Next{})
			wantCode(t, err, StatusFailedPrecondition)
			if r.Check(s) == nil {
				t.Error("Check() should report the blocking answer")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	r := testReducer(t)
	s := walkTo(t, r, NewState(), StepDelivery)

	v := r.Describe("sess", s)
	if v.Step != StepDelivery || v.Progress != 30 || v.TotalSteps != 10 {
		t.Fatalf("view = %+v", v)
	}
	if v.CanAdvance || v.BlockingReason != ErrMsgDeliveryRequired {
		t.Errorf("CanAdvance=%v BlockingReason=%q", v.CanAdvance, v.BlockingReason)
	}
	if !v.CanGoBack || !v.CanSkip {
		t.Errorf("CanGoBack=%v CanSkip=%v", v.CanGoBack, v.CanSkip)
	}
	if v.Quote == nil || v.Quote.GrandTotal != 7499 {
		t.Errorf("quote = %+v, want grand total 74.99", v.Quote)
	}
}
