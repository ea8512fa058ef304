package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// Run states reported by /status
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
)

// StatusResponse is the body served on /status
type StatusResponse struct {
	State    string       `json:"state"`
	RunID    string       `json:"runId,omitempty"`
	Status   string       `json:"status,omitempty"`
	Total    int          `json:"total"`
	Executed int          `json:"executed"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Skipped  int          `json:"skipped"`
	Errored  int          `json:"errored"`
	Duration float64      `json:"durationSeconds"`
	Cases    []CaseStatus `json:"cases,omitempty"`
}

// CaseStatus is the per-case entry of StatusResponse
type CaseStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Category string `json:"category,omitempty"`
}

type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	closed bool

	mu     sync.RWMutex
	status StatusResponse
}

func NewHealthzServer() *HealthzServer {
	return &HealthzServer{status: StatusResponse{State: StateIdle}}
}

// Handler returns the routes served by the healthz server
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return http.ErrServerClosed
	}
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server.ListenAndServe()
}

// Shutdown stops the server. A Start racing with it returns http.ErrServerClosed.
func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	h.closed = true
	server, ctx := h.server, h.ctx
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	body, err := json.Marshal(h.status)
	h.mu.RUnlock()
	if err != nil {
		log.Error("failed to marshal status", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body) //nolint:errcheck
}

// SetRunning marks a run as in progress
func (h *HealthzServer) SetRunning(runID string, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusResponse{State: StateRunning, RunID: runID, Total: total}
}

// SetSummary publishes the finalized summary of the last run
func (h *HealthzServer) SetSummary(summary *types.RunSummary) {
	cases := make([]CaseStatus, 0, len(summary.Cases))
	for _, c := range summary.Cases {
		cases = append(cases, CaseStatus{
			Name:     c.Case.Name,
			Status:   string(c.Outcome.Status),
			Category: string(c.Outcome.Category),
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusResponse{
		State:    StateCompleted,
		RunID:    summary.RunID,
		Status:   string(summary.Status()),
		Total:    summary.Total,
		Executed: summary.Executed,
		Passed:   summary.Passed(),
		Failed:   summary.Failed,
		Skipped:  summary.Skipped,
		Errored:  summary.Errored,
		Duration: summary.Duration.Seconds(),
		Cases:    cases,
	}
}
