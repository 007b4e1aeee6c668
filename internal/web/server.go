// Package web serves the HTTP API: uploads, import review, measurement
// queries, health and metrics. It is a thin shell over the store and
// the job queue; no decoding happens on the request path.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"bgeigie-hub/internal/jobs"
	"bgeigie-hub/internal/metrics"
	"bgeigie-hub/internal/store"
)

type Server struct {
	store *store.Store
	queue *jobs.Queue
	log   *slog.Logger
}

func NewServer(st *store.Store, queue *jobs.Queue, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, queue: queue, log: log}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/imports", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/imports", s.handleListImports).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id:[0-9]+}", s.handleGetImport).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id:[0-9]+}/measurements", s.handleMeasurements).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id:[0-9]+}/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/imports/{id:[0-9]+}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/imports/{id:[0-9]+}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/imports/{id:[0-9]+}/process", s.handleReprocess).Methods(http.MethodPost)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	}).Methods(http.MethodGet)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
