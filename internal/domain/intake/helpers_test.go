package intake

import (
	"sync"
	"testing"
	"time"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/money"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

func testCatalog(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot(
		[]catalog.Product{
			{ID: "p1", Name: "Flower", Kind: catalog.KindFlower, PricePerGram: 1250},
			{ID: "p2", Name: "Oil", Kind: catalog.KindExtract, PricePerBottle: 8995, BottleSizeML: 25},
			{ID: "p3", Name: "Unpriced", Kind: catalog.KindFlower},
			{ID: "p9", Name: "Elsewhere", Kind: catalog.KindFlower, PricePerGram: 1000},
		},
		[]catalog.Pharmacy{
			{ID: "ph1", Name: "First", ProductIDs: []string{"p1", "p2", "p3"}},
			{ID: "ph2", Name: "Second", ProductIDs: []string{"p9"}},
		},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return snap
}

func testReducer(t *testing.T) *Reducer {
	t.Helper()
	return NewReducer(DefaultTable(), testCatalog(t), pricing.DefaultPolicy())
}

// validAnswer returns an action that satisfies the guard of step.
func validAnswer(step StepID) Action {
	switch step {
	case StepProducts:
		return SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 4}
	case StepTreatment:
		return SetTreatment{Treatment: TreatmentInitial}
	case StepExclusion:
		return SetExclusion{Exclusion: Exclusion{IsOver21: Yes, PregnantOrNursing: No, PsychoticDisorder: No, SevereHeartDisease: No}}
	case StepDelivery:
		return SetDelivery{Delivery: Delivery{Method: DeliveryPickup}}
	case StepConsent:
		return SetConsent{Consent: Consent{Terms: true, Privacy: true, Telemedicine: true, TruthfulInfo: true}}
	case StepSymptoms:
		return SetSymptoms{Symptoms: Symptoms{Groups: SymptomGroup{ChronicPain: true}, Intensity: 6, DurationMonths: 12}}
	case StepTherapies:
		return SetTherapies{Therapies: Therapies{Painkillers: true}}
	case StepConditions:
		return SetConditions{Conditions: Conditions{TakesMedication: No}}
	case StepExperience:
		return SetExperience{Experience: Experience{HasUsedCannabis: No}}
	case StepFeedback:
		return SetFeedback{Feedback: Feedback{Satisfaction: 4}}
	case StepCheckout:
		return SetCheckout{Checkout: Checkout{PaymentMethod: PaymentCard, Confirmed: true}}
	}
	return nil
}

func mustReduce(t *testing.T, r *Reducer, s State, a Action) State {
	t.Helper()
	next, err := r.Reduce(s, a)
	if err != nil {
		t.Fatalf("Reduce(%s) at %s: %v", a.Type(), r.Table().Active(s).ID, err)
	}
	return next
}

// walkTo answers and advances until the active step is target.
func walkTo(t *testing.T, r *Reducer, s State, target StepID) State {
	t.Helper()
	for i := 0; r.Table().Active(s).ID != target; i++ {
		if i > r.Table().Total() {
			t.Fatalf("step %s not reached", target)
		}
		s = mustReduce(t, r, s, validAnswer(r.Table().Active(s).ID))
		s = mustReduce(t, r, s, Next{})
	}
	return s
}

func wantCode(t *testing.T, err error, code StatusCode) {
	t.Helper()
	got, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected *ActionError with %s, got %v", code, err)
	}
	if got != code {
		t.Fatalf("code = %s, want %s (%v)", got, code, err)
	}
}

type fakeRecorder struct {
	mu          sync.Mutex
	started     int
	abandoned   []StepID
	active      int
	transitions int
	rejected    []StepID
	completed   []money.Amount
	submissions []error
}

func (f *fakeRecorder) SessionStarted() { f.mu.Lock(); f.started++; f.mu.Unlock() }
func (f *fakeRecorder) SessionAbandoned(at StepID) {
	f.mu.Lock()
	f.abandoned = append(f.abandoned, at)
	f.mu.Unlock()
}
func (f *fakeRecorder) SessionsActive(n int)        { f.mu.Lock(); f.active = n; f.mu.Unlock() }
func (f *fakeRecorder) StepChanged(from, to StepID) { f.mu.Lock(); f.transitions++; f.mu.Unlock() }
func (f *fakeRecorder) SessionRejected(at StepID) {
	f.mu.Lock()
	f.rejected = append(f.rejected, at)
	f.mu.Unlock()
}
func (f *fakeRecorder) SessionCompleted(total money.Amount, _ bool) {
	f.mu.Lock()
	f.completed = append(f.completed, total)
	f.mu.Unlock()
}
func (f *fakeRecorder) SubmissionFinished(_ time.Duration, err error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, err)
	f.mu.Unlock()
}
