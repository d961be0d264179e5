package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMetrics(t *testing.T) {
	m := NewMetrics()
	m.WorkflowStarted()
	m.WorkflowStarted()
	m.WorkflowFinished("COMPLETED", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.workflowsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowsFinished.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.workflowDuration))
}

func TestTaskAndCompilerMetrics(t *testing.T) {
	m := NewMetrics()
	m.TaskSubmitted("A")
	m.TaskSubmitted("A")
	m.TaskSubmitted("B")
	m.TaskFinished("A", "COMPLETED", 10*time.Millisecond)
	m.Distributed(3)
	m.CompileFailed("capability")
	m.ControllerPass(time.Millisecond)
	m.JournalError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compileFailures.WithLabelValues("capability")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.controllerPasses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalErrors))
}

func TestServeHTTP(t *testing.T) {
	m := NewMetrics()
	m.WorkflowStarted()

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stratus_workflows_started_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
