package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/drfirst/go-intake/internal/domain/intake"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionsActive(2)
	m.StepChanged(intake.StepProducts, intake.StepTreatment)
	m.SessionRejected(intake.StepExclusion)
	m.SessionAbandoned(intake.StepConsent)
	m.SessionCompleted(7499, true)
	m.SubmissionFinished(1500*time.Millisecond, nil)
	m.SubmissionFinished(time.Second, errors.New("timeout"))

	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Errorf("sessions started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Errorf("active sessions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StepTransitions.WithLabelValues("products", "treatment")); got != 1 {
		t.Errorf("transition products->treatment = %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsDisqualified.WithLabelValues("exclusion")); got != 1 {
		t.Errorf("disqualified = %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsAbandoned.WithLabelValues("consent")); got != 1 {
		t.Errorf("abandoned = %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCompleted.WithLabelValues("skipped")); got != 1 {
		t.Errorf("completed = %v", got)
	}
	if n := testutil.CollectAndCount(m.SubmissionDuration); n != 2 {
		t.Errorf("submission duration series = %d, want 2", n)
	}
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BreakerState("pharmacy-ph1", 1)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `circuit_breaker_state{name="pharmacy-ph1"} 1`) {
		t.Errorf("breaker state missing from output:\n%s", rec.Body.String())
	}
}
