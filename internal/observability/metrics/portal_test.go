package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPortal_RecordAuth(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPortal(reg)

	p.RecordAuth("sign_in", "signed_in")
	p.RecordAuth("sign_in", "signed_in")
	p.RecordAuth("sign_in", "invalid_credentials")

	assert.InDelta(t, 2, testutil.ToFloat64(p.authOutcomes.WithLabelValues("sign_in", "signed_in")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.authOutcomes.WithLabelValues("sign_in", "invalid_credentials")), 0)
}

func TestPortal_RecordSubmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPortal(reg)

	p.RecordSubmission(SubmissionMetric{Operation: "register_event", Outcome: "registered", Duration: 20 * time.Millisecond})
	p.RecordSubmission(SubmissionMetric{Operation: "register_event", Outcome: "failed", Err: errors.New("boom")})

	assert.InDelta(t, 1, testutil.ToFloat64(p.submissionOutcomes.WithLabelValues("register_event", "registered", "")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(p.submissionDuration))
}

func TestPortal_NilIsNoop(t *testing.T) {
	var p *Portal
	assert.NotPanics(t, func() {
		p.RecordAuth("sign_out", "signed_out")
		p.RecordSubmission(SubmissionMetric{Operation: "x"})
		p.RecordTransition(true)
		p.RecordDiscard()
		p.SetActiveClients(3)
	})
}

func TestPortal_Transitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPortal(reg)

	p.RecordTransition(true)
	p.RecordTransition(false)
	p.RecordTransition(false)
	p.RecordDiscard()
	p.SetActiveClients(4)

	assert.InDelta(t, 1, testutil.ToFloat64(p.sessionTransitions.WithLabelValues("authenticated")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(p.sessionTransitions.WithLabelValues("anonymous")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.discardedResults), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(p.activeClients), 0)
}

func TestHandler_ExposesPortalCollectors(t *testing.T) {
	reg := NewRegistry()
	p := NewPortal(reg)
	p.SetActiveClients(2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_active_clients 2")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
