// Package ops serves the operational endpoints of the worker.
package ops

import (
	"net/http"

	"github.com/Wonsky1/topn-worker/internal/metrics"

	"github.com/gorilla/mux"
)

// NewRouter exposes /metrics and /healthz
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
