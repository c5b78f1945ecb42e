package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/internal/metrics"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRecordStepDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hooks := m.Hooks(logging.NewNop())

	hooks.OnStepStart(context.Background(), &domain.StepEvent{Step: "Compile"})
	hooks.OnStepEnd(context.Background(), &domain.StepEvent{Step: "Compile", Elapsed: 2 * time.Second})
	hooks.OnStepEnd(context.Background(), &domain.StepEvent{Step: "Deploy", Err: errors.New("unsafe")})

	assert.Equal(t, 2, testutil.CollectAndCount(m.StepDuration))
}

func TestObserveResult(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveResult(domain.BuildResult{Success: true})
	m.ObserveResult(domain.BuildResult{Success: false, Deploy: &domain.DeployOutcome{Success: false}})
	m.OnRetry("Compile", 2)
	m.OnRetry("Compile", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deploys.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolchainRetries.WithLabelValues("Compile")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Claims.WithLabelValues("claimed").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flowforge_claims_total{result="claimed"} 1`)
}
