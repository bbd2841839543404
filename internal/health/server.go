package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/refresher"
)

type HealthResponse struct {
	Status             string `json:"status"`
	Service            string `json:"service"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	Timestamp          int64  `json:"timestamp"`
	Cycles             int    `json:"cycles"`
	LastCycleAt        int64  `json:"last_cycle_at,omitempty"`
	LastCycleError     string `json:"last_cycle_error,omitempty"`
	DatabasesRefreshed int    `json:"databases_refreshed"`
	ViewsRefreshed     int    `json:"views_refreshed"`
	ViewsFailed        int    `json:"views_failed"`
}

// Tracker remembers the most recent cycle. It is written by the refresh
// loop and read by the health handler.
type Tracker struct {
	mu        sync.RWMutex
	startTime time.Time
	cycles    int
	last      *refresher.CycleReport
}

func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now()}
}

func (t *Tracker) Record(report *refresher.CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cycles++
	t.last = report
}

// Snapshot builds the health response for service.
func (t *Tracker) Snapshot(service string) *HealthResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &HealthResponse{
		Status:        "healthy",
		Service:       service,
		UptimeSeconds: int64(time.Since(t.startTime).Seconds()),
		Timestamp:     time.Now().Unix(),
		Cycles:        t.cycles,
	}

	if t.last != nil {
		resp.LastCycleAt = t.last.StartedAt.Unix()
		resp.LastCycleError = t.last.Error
		resp.DatabasesRefreshed = t.last.DatabasesRefreshed()
		resp.ViewsRefreshed = t.last.ViewsRefreshed()
		resp.ViewsFailed = t.last.ViewsFailed()
		if t.last.Error != "" {
			resp.Status = "degraded"
		}
	}

	return resp
}

type HealthServer struct {
	service string
	tracker *Tracker

	mu     sync.Mutex
	server *http.Server
}

func NewHealthServer(service string, tracker *Tracker) *HealthServer {
	return &HealthServer{
		service: service,
		tracker: tracker,
	}
}

// Handler serves /health.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	return mux
}

// Start blocks serving on addr until Shutdown is called.
func (h *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.mu.Lock()
	h.server = server
	h.mu.Unlock()

	return server.ListenAndServe()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	server := h.server
	h.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := h.tracker.Snapshot(h.service)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
