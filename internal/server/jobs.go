package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/drivecopy/internal/jobs"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/shared"
)

// DefaultDisplayLimit caps the items returned with a job snapshot.
const DefaultDisplayLimit = 1000

const maxBodyBytes = 1 << 20

// Error codes returned in [ErrorResponse.Code].
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeJobNotFound   = "JOB_NOT_FOUND"
	CodeJobNotRunning = "JOB_NOT_RUNNING"
	CodeDestination   = "DESTINATION_FAILED"
	CodeInternal      = "INTERNAL"
)

// JobStore is the registry surface the HTTP API needs. Implemented by [jobs.Registry].
type JobStore interface {
	CreateJob(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error)
	GetJob(id string) (*models.Job, bool)
	ListJobs() []*models.Job
	DeleteJob(id string) bool
	CancelJob(id string) bool
	Len() int
}

// SubmitResponse is returned by POST /api/jobs.
type SubmitResponse struct {
	JobID          string           `json:"jobId"`
	TargetFolderID string           `json:"targetFolderId,omitempty"`
	Status         models.JobStatus `json:"status"`
}

// JobView is a job snapshot with its items capped to the display limit.
type JobView struct {
	*models.Job
	ItemsTruncated bool `json:"itemsTruncated"`
}

// ListResponse is returned by GET /api/jobs.
type ListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// DeleteResponse is returned by DELETE /api/jobs/{id}.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// CancelResponse is returned by POST /api/jobs/{id}/cancel.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Jobs   int    `json:"jobs"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"jobId,omitempty"`
}

// JobsHandler serves the job API.
type JobsHandler struct {
	store        JobStore
	displayLimit int
	logger       *log.Logger
	mux          *http.ServeMux
}

// NewJobsHandler creates a [JobsHandler]. A displayLimit of zero or less uses [DefaultDisplayLimit].
func NewJobsHandler(store JobStore, displayLimit int, logger *log.Logger) *JobsHandler {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	h := &JobsHandler{store: store, displayLimit: displayLimit, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/jobs", h.create)
	h.mux.HandleFunc("GET /api/jobs", h.list)
	h.mux.HandleFunc("GET /api/jobs/{id}", h.get)
	h.mux.HandleFunc("DELETE /api/jobs/{id}", h.delete)
	h.mux.HandleFunc("POST /api/jobs/{id}/cancel", h.cancel)
	h.mux.HandleFunc("GET /health", h.health)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *JobsHandler) Routes() []string {
	return []string{
		"POST /api/jobs",
		"GET /api/jobs",
		"GET /api/jobs/{id}",
		"DELETE /api/jobs/{id}",
		"POST /api/jobs/{id}/cancel",
		"GET /health",
	}
}

// ServeHTTP dispatches to the job endpoints.
func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *JobsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	job, err := h.store.CreateJob(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, TargetFolderID: job.TargetFolderID, Status: job.Status})
	case errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, shared.ErrDestination):
		resp := ErrorResponse{Code: CodeDestination, Message: err.Error()}
		if job != nil {
			resp.JobID = job.ID
		}
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		h.logger.Error("create job failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func (h *JobsHandler) list(w http.ResponseWriter, r *http.Request) {
	all := h.store.ListJobs()
	resp := ListResponse{Jobs: make([]JobView, 0, len(all))}
	for _, job := range all {
		resp.Jobs = append(resp.Jobs, h.view(job))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *JobsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := h.store.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, CodeJobNotFound, "job not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, h.view(job))
}

func (h *JobsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.store.DeleteJob(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, DeleteResponse{Deleted: false})
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true})
}

func (h *JobsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.store.GetJob(id); !ok {
		writeError(w, http.StatusNotFound, CodeJobNotFound, "job not found: "+id)
		return
	}
	if !h.store.CancelJob(id) {
		writeError(w, http.StatusConflict, CodeJobNotRunning, "job is not running: "+id)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Canceled: true})
}

func (h *JobsHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Jobs: h.store.Len()})
}

// view caps the items of a snapshot. The snapshot is owned by the caller so it is trimmed in place.
func (h *JobsHandler) view(job *models.Job) JobView {
	v := JobView{Job: job}
	if len(job.Items) > h.displayLimit {
		job.Items = job.Items[:h.displayLimit]
		v.ItemsTruncated = true
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
