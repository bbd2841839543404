package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/refresher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, server *HealthServer) HealthResponse {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth_BeforeFirstCycle(t *testing.T) {
	server := NewHealthServer("refresher", NewTracker())

	resp := getHealth(t, server)

	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "refresher", resp.Service)
	assert.Zero(t, resp.Cycles)
	assert.Zero(t, resp.LastCycleAt)
}

func TestHealth_ReflectsLastCycle(t *testing.T) {
	tracker := NewTracker()
	server := NewHealthServer("refresher", tracker)

	report := refresher.NewCycleReport()
	report.Add(refresher.DatabaseReport{Database: "a", Lookup: "found", Views: 3, Refreshed: 2, Failed: 1})
	report.Add(refresher.DatabaseReport{Database: "b", Lookup: "not_found"})
	report.Finish()
	tracker.Record(report)

	resp := getHealth(t, server)

	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 1, resp.Cycles)
	assert.Equal(t, report.StartedAt.Unix(), resp.LastCycleAt)
	assert.Equal(t, 1, resp.DatabasesRefreshed)
	assert.Equal(t, 2, resp.ViewsRefreshed)
	assert.Equal(t, 1, resp.ViewsFailed)
}

func TestHealth_DegradedAfterDiscoveryFailure(t *testing.T) {
	tracker := NewTracker()
	server := NewHealthServer("refresher", tracker)

	tracker.Record(refresher.Failed(time.Now(), errors.New("connection refused")))

	resp := getHealth(t, server)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.LastCycleError)

	tracker.Record(refresher.NewCycleReport())

	resp = getHealth(t, server)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.Cycles)
}

func TestHealthServer_ShutdownWhenNotStarted(t *testing.T) {
	server := NewHealthServer("refresher", NewTracker())

	assert.NoError(t, server.Shutdown(context.Background()))
}
