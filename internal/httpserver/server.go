package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/auth"
	"github.com/gestpipe/console/internal/models"
	"github.com/gestpipe/console/internal/pipeline"
	"github.com/gestpipe/console/internal/service"
	"github.com/gestpipe/console/internal/store"
	"github.com/gestpipe/console/internal/training"
)

type Server struct {
	authCfg  auth.Config
	service  *service.Service
	pipeline *pipeline.Orchestrator
	training *training.Manager
	store    store.Store
}

func New(authCfg auth.Config, svc *service.Service, orch *pipeline.Orchestrator, mgr *training.Manager, st store.Store) *Server {
	return &Server{
		authCfg:  authCfg,
		service:  svc,
		pipeline: orch,
		training: mgr,
		store:    st,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authCfg))

		r.Route("/gestures", func(r chi.Router) {
			r.Get("/statuses", s.handleStatuses)
			r.Post("/upload", s.handleUpload)
			r.Post("/check-conflict", s.handleCheckConflict)
			r.Post("/submit", s.handleSubmit)
			r.Post("/reset", s.handleResetCustomized)
			r.With(auth.RequireRole(auth.RoleSuperadmin)).Post("/reset-active", s.handleResetToActive)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/mine", s.handleMySubmission)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleSuperadmin))
				r.Get("/", s.handleListSubmissions)
				r.Post("/{id}/approve", s.handleApprove)
				r.Post("/{id}/reject", s.handleReject)
			})
		})

		r.Route("/training", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleSuperadmin))
			r.Get("/status", s.handleTrainingStatus)
			r.Post("/runs", s.handleStartTraining)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Post("/runs/{id}/cancel", s.handleCancelRun)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// --- gestures ---

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	report, err := s.service.GestureStatuses(r.Context(), id.AdminID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type uploadRequest struct {
	GestureID   string          `json:"gestureId"`
	GestureName string          `json:"gestureName"`
	Samples     []models.Sample `json:"samples"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := auth.FromContext(r.Context())
	result, err := s.service.UploadSamples(r.Context(), id.AdminID, req.GestureID, req.GestureName, req.Samples)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type checkConflictRequest struct {
	Sample models.Sample `json:"sample"`
}

func (s *Server) handleCheckConflict(w http.ResponseWriter, r *http.Request) {
	var req checkConflictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	conflict, message := s.service.CheckConflict(req.Sample)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conflict": conflict,
		"message":  message,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	result, err := s.service.SubmitForApproval(r.Context(), id.AdminID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleResetCustomized(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	count, err := s.service.ResetCustomized(r.Context(), id.AdminID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"resetCount": count})
}

type resetActiveRequest struct {
	AdminID string `json:"adminId"`
}

func (s *Server) handleResetToActive(w http.ResponseWriter, r *http.Request) {
	var req resetActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	adminID, err := uuid.Parse(req.AdminID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid adminId")
		return
	}
	count, err := s.service.ResetToActive(r.Context(), adminID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"resetCount": count})
}

// --- submissions ---

func (s *Server) handleMySubmission(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	sub, err := s.service.SubmissionForAdmin(r.Context(), id.AdminID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	status := models.SubmissionStatus(r.URL.Query().Get("status"))
	subs, err := s.service.ListSubmissions(r.Context(), status, 0)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid submission id")
		return
	}
	sub, err := s.pipeline.Approve(r.Context(), subID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, sub)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid submission id")
		return
	}
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := s.pipeline.Reject(r.Context(), subID, req.Reason)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// --- training ---

func (s *Server) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.training.Status(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	run, err := s.training.Start(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID.String()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.training.ListRuns(r.Context(), 0)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if runs == nil {
		runs = []models.TrainingRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.training.GetRun(r.Context(), runID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	if err := s.training.Cancel(r.Context(), runID); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "cancellation requested"})
}

// respondFailure maps domain errors onto HTTP statuses.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, training.ErrAlreadyRunning),
		errors.Is(err, training.ErrNotActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, training.ErrEmptyDataset),
		errors.Is(err, training.ErrRunMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
