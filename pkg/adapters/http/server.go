// Package http exposes the build queue and deploy approvals over HTTP and
// provides the matching client used by workers.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// errBadRequest marks request payloads that fail validation.
var errBadRequest = errors.New("bad request")

// errSelfApproval is returned when the requester tries to approve their own
// production deploy.
var errSelfApproval = errors.New("a deploy cannot be approved by its requester")

// Server serves the build API.
type Server struct {
	queue    ports.JobQueue
	records  *deploy.Records
	deploys  ports.DeployRecordStore
	targets  ports.TargetRegistry
	logger   *slog.Logger
	metrics  http.Handler
	health   func(context.Context) error
	onResult func(domain.BuildResult)
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes /health report the result of check.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithResultObserver is called once with the result that finished a job.
// Repeated reports of the same job are not observed.
func WithResultObserver(fn func(domain.BuildResult)) Option {
	return func(s *Server) { s.onResult = fn }
}

// NewServer creates the API over its stores.
func NewServer(queue ports.JobQueue, deploys ports.DeployRecordStore, targets ports.TargetRegistry, opts ...Option) *Server {
	s := &Server{
		queue:   queue,
		deploys: deploys,
		targets: targets,
		logger:  logging.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = deploy.NewRecords(queue, deploys, targets, s.logger, deploy.ObserveResults(s.onResult))
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/build", func(r chi.Router) {
		r.Post("/", s.handleRequestBuild)
		r.Post("/claim", s.handleClaim)
		r.Get("/{jobID}", s.handleGetJob)
		r.Post("/{jobID}/start", s.handleStart)
		r.Post("/{jobID}/result", s.handleResult)
	})
	r.Route("/deploy/{deployID}", func(r chi.Router) {
		r.Get("/", s.handleGetDeploy)
		r.Post("/approve", s.handleDecision(true))
		r.Post("/reject", s.handleDecision(false))
	})
	return r
}

type claimRequest struct {
	ToolchainVersion string `json:"toolchainVersion"`
	WorkerID         string `json:"workerId"`
}

type decisionRequest struct {
	Approver string `json:"approver"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRequestBuild(w http.ResponseWriter, r *http.Request) {
	var req domain.BuildRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateRequest(req); err != nil {
		s.writeError(w, err)
		return
	}

	now := s.now()
	job := &domain.BuildJob{
		ID:               uuid.NewString(),
		ProjectID:        req.ProjectID,
		ProjectName:      req.ProjectName,
		RepoURL:          req.RepoURL,
		Branch:           req.Branch,
		MachineType:      req.MachineType,
		ToolchainVersion: req.ToolchainVersion,
		RequestedBy:      req.RequestedBy,
		IncludeDeploy:    req.IncludeDeploy,
		TargetNetID:      req.TargetNetID,
		Status:           domain.BuildPending,
		CreatedAt:        now,
	}
	if job.Branch == "" {
		job.Branch = domain.DefaultBranch
	}

	if job.IncludeDeploy {
		target, err := s.targets.Target(r.Context(), job.TargetNetID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status := domain.DeployPending
		if target.Production {
			status = domain.DeployAwaitingApproval
		}
		rec := &domain.DeployRecord{
			ID:          uuid.NewString(),
			BuildJobID:  job.ID,
			TargetNetID: target.NetID,
			Status:      status,
			RequestedBy: job.RequestedBy,
			CreatedAt:   now,
		}
		if err := s.deploys.Create(r.Context(), rec); err != nil {
			s.writeError(w, err)
			return
		}
	}

	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("build requested", "job_id", job.ID, "project_id", job.ProjectID, "toolchain", job.ToolchainVersion, "deploy", job.IncludeDeploy)
	writeJSON(w, http.StatusCreated, job)
}

func validateRequest(req domain.BuildRequest) error {
	missing := func(field string) error { return fmt.Errorf("%w: %s is required", errBadRequest, field) }
	switch {
	case req.ProjectID == "":
		return missing("projectId")
	case req.RepoURL == "":
		return missing("repoUrl")
	case req.ToolchainVersion == "":
		return missing("toolchainVersion")
	case req.RequestedBy == "":
		return missing("requestedBy")
	case req.IncludeDeploy && req.TargetNetID == "":
		return missing("targetNetId")
	}
	return nil
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ToolchainVersion == "" || req.WorkerID == "" {
		s.writeError(w, fmt.Errorf("%w: toolchainVersion and workerId are required", errBadRequest))
		return
	}

	job, err := s.records.ClaimNext(r.Context(), req.ToolchainVersion, req.WorkerID)
	if errors.Is(err, domain.ErrClaimConflict) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("build claimed", "job_id", job.ID, "worker_id", req.WorkerID)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.MarkInProgress(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var res domain.BuildResult
	if !s.decode(w, r, &res) {
		return
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = s.now()
	}
	if err := s.records.ReportResult(r.Context(), jobID, res); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("build finished", "job_id", jobID, "status", res.Status(), "errors", len(res.Errors))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDeploy(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deploys.Get(r.Context(), chi.URLParam(r, "deployID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDecision(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "deployID")
		var req decisionRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Approver == "" {
			s.writeError(w, fmt.Errorf("%w: approver is required", errBadRequest))
			return
		}

		err := s.deploys.Update(r.Context(), id, func(rec *domain.DeployRecord) error {
			if rec.Status != domain.DeployPending && rec.Status != domain.DeployAwaitingApproval {
				return fmt.Errorf("%w: deploy %s is %s", domain.ErrInvalidTransition, rec.ID, rec.Status)
			}
			if req.Approver == rec.RequestedBy {
				return errSelfApproval
			}
			rec.ApprovedBy = req.Approver
			if approve {
				rec.Status = domain.DeployApproved
				return nil
			}
			rec.Status = domain.DeployRejected
			now := s.now()
			rec.CompletedAt = &now
			return nil
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		rec, err := s.deploys.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("deploy decided", "deploy_id", id, "status", rec.Status, "approver", req.Approver)
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrDeployNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTargetNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, errSelfApproval):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
