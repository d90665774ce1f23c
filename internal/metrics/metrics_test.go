package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cgr/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.GroupRun("g", 3)
	c.GroupInvalidated("bad", 2)
	c.CallPhase("g", 150*time.Millisecond)
	c.LogStart("a")
	c.LogStart("b")
	c.LogReport(domain.Report{CaseID: "a", Phase: domain.PhaseSetup, Outcome: domain.OutcomePassed})
	c.LogReport(domain.Report{CaseID: "a", Phase: domain.PhaseCall, Outcome: domain.OutcomePassed})
	c.LogReport(domain.Report{CaseID: "b", Phase: domain.PhaseTeardown, Outcome: domain.OutcomeFailed})
	c.LogFinish("a")
	c.Warn(domain.Warning{Kind: domain.WarningGrouping})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.groupsTotal.WithLabelValues("run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.groupsTotal.WithLabelValues("invalidated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.casesTotal.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.casesTotal.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.casesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.warningsTotal.WithLabelValues(domain.WarningGrouping)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.casesRunning))
	assert.Equal(t, 1, testutil.CollectAndCount(c.callPhaseDuration))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.GroupRun("g", 2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `cgr_groups_total{result="run"} 1`), text)
	assert.Contains(t, text, `cgr_case_reports_total{status="xpassed"} 0`)
}
