package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"bgeigie-hub/internal/bgeigie"
	"bgeigie-hub/internal/jobs"
	"bgeigie-hub/internal/store"
)

const maxUploadBytes = 32 << 20

// handleUpload accepts a multipart .log upload, stores it as a new
// import and queues decode-and-ingest. The response returns before any
// decoding happens.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".log") {
		s.writeError(w, http.StatusBadRequest, "invalid file type, only .log files are accepted")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}
	if len(content) == 0 {
		s.writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	imp, err := s.store.CreateImport(r.Context(), header.Filename, r.FormValue("uploaded_by"), content)
	if err != nil {
		s.log.Error("create import failed", "filename", header.Filename, "error", err)
		s.writeError(w, http.StatusInternalServerError, "create import failed")
		return
	}

	jobID, err := s.queue.EnqueueDecodeAndIngest(imp.ID)
	if err != nil {
		// The upload is stored; ingestion can be retried via /process.
		s.log.Warn("ingest enqueue failed", "import_id", imp.ID, "error", err)
		s.writeJSON(w, http.StatusAccepted, map[string]any{"import": imp, "job_id": ""})
		return
	}

	s.log.Info("import uploaded", "import_id", imp.ID, "filename", header.Filename, "bytes", len(content))
	s.writeJSON(w, http.StatusAccepted, map[string]any{"import": imp, "job_id": jobID})
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	imports, err := s.store.Imports(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list imports failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "list imports failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"imports": imports})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, imp)
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	ms, err := s.store.MeasurementsByImport(r.Context(), imp.ID)
	if err != nil {
		s.log.Error("load measurements failed", "import_id", imp.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "load measurements failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"import_id":    imp.ID,
		"total_count":  len(ms),
		"measurements": ms,
	})
}

// handleSubmit moves a processed import into the review queue.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	if imp.Status != store.StatusProcessed {
		s.writeError(w, http.StatusConflict, "import must be processed before submission")
		return
	}
	s.transition(w, r, imp, store.StatusSubmitted, actor(r), "")
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	if imp.Status != store.StatusSubmitted {
		s.writeError(w, http.StatusConflict, "import is not awaiting review")
		return
	}
	s.transition(w, r, imp, store.StatusApproved, actor(r), jobs.NotifyImportApproved)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	if imp.Status != store.StatusSubmitted {
		s.writeError(w, http.StatusConflict, "import is not awaiting review")
		return
	}
	s.transition(w, r, imp, store.StatusRejected, actor(r), jobs.NotifyImportRejected)
}

// handleReprocess re-queues decode-and-ingest for an existing import.
// Decoding is idempotent, so this is safe to repeat.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.loadImport(w, r)
	if !ok {
		return
	}
	jobID, err := s.queue.EnqueueDecodeAndIngest(imp.ID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"import_id": imp.ID, "job_id": jobID})
}

// validateRequest is the ad-hoc quality inspection payload.
type validateRequest struct {
	Measurements []struct {
		CPM        int       `json:"cpm"`
		Latitude   float64   `json:"latitude"`
		Longitude  float64   `json:"longitude"`
		CapturedAt time.Time `json:"captured_at"`
	} `json:"measurements"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ms := make([]bgeigie.Measurement, 0, len(req.Measurements))
	for _, m := range req.Measurements {
		ms = append(ms, bgeigie.Measurement{
			CPM: m.CPM, Latitude: m.Latitude, Longitude: m.Longitude, CapturedAt: m.CapturedAt,
		})
	}
	jobID, err := s.queue.EnqueueValidate(ms)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "supplied": len(ms)})
}

func (s *Server) loadImport(w http.ResponseWriter, r *http.Request) (store.Import, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid import id")
		return store.Import{}, false
	}
	imp, err := s.store.Import(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "import not found")
		return store.Import{}, false
	}
	if err != nil {
		s.log.Error("load import failed", "import_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "load import failed")
		return store.Import{}, false
	}
	return imp, true
}

// transition applies a review status change and, for decisions, queues
// the notification to the uploader.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, imp store.Import, status store.ImportStatus, actor, notifyKind string) {
	if err := s.store.SetImportStatus(r.Context(), imp.ID, status, actor); err != nil {
		s.log.Error("status transition failed", "import_id", imp.ID, "status", status, "error", err)
		s.writeError(w, http.StatusInternalServerError, "status transition failed")
		return
	}
	if notifyKind != "" && imp.UploadedBy != "" {
		if _, err := s.queue.EnqueueNotification(notifyKind, imp.ID, imp.UploadedBy, map[string]string{
			"status": string(status),
			"actor":  actor,
		}); err != nil {
			s.log.Warn("notification enqueue failed", "import_id", imp.ID, "error", err)
		}
	}
	imp.Status = status
	s.log.Info("import status changed", "import_id", imp.ID, "status", status, "actor", actor)
	s.writeJSON(w, http.StatusOK, imp)
}

func actor(r *http.Request) string {
	if a := r.FormValue("actor"); a != "" {
		return a
	}
	return "admin"
}
