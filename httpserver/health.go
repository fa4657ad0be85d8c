package httpserver

import (
	"net/http"
	"sync/atomic"
)

// HealthResponse is the body of /livez and /readyz.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// health tracks whether the server is accepting work. It reports ready from
// the moment the handler is built until shutdown starts, so load balancers
// drain the instance before in-flight requests are cut.
type health struct {
	service  string
	version  string
	draining atomic.Bool
}

func (h *health) live(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: h.service,
		Version: h.version,
	}, "")
}

func (h *health) ready(w http.ResponseWriter, _ *http.Request) {
	if h.draining.Load() {
		WriteJSON(w, http.StatusServiceUnavailable, Response[HealthResponse]{
			Data:    HealthResponse{Status: "draining", Service: h.service, Version: h.version},
			Message: "shutting down",
		})
		return
	}
	h.live(w, nil)
}

func (h *health) drain() {
	h.draining.Store(true)
}
