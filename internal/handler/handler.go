// Package handler serves the question bank's JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appI18n "github.com/qngenius/qngenius/internal/i18n"
	"github.com/qngenius/qngenius/internal/importer"
	"github.com/qngenius/qngenius/internal/model"
	"github.com/qngenius/qngenius/internal/paper"
	"github.com/qngenius/qngenius/internal/similarity"
	"github.com/qngenius/qngenius/internal/store"
)

// DefaultJobRetention is how long a finished import job can still be polled.
const DefaultJobRetention = 24 * time.Hour

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	config   model.ServeConfig
	validate *validator.Validate
	importer *importer.Importer
	papers   *paper.Generator
	matcher  *similarity.Matcher

	jobsMu sync.Mutex
	jobs   map[string]*importJob
	wg     sync.WaitGroup
}

// New creates a new Handler. classifier may be nil; it is only used when
// cfg.SuggestBloom is set.
func New(s *store.Store, classifier importer.BloomClassifier, cfg model.ServeConfig) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: nil store")
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 10 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = store.DefaultSessionTTL
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = DefaultJobRetention
	}

	opts := []importer.Option{
		importer.WithBatchSize(cfg.BatchSize),
		importer.WithThreshold(cfg.SimilarityThreshold),
		importer.WithWorkers(cfg.ScreenWorkers),
	}
	if cfg.SuggestBloom && classifier != nil {
		opts = append(opts, importer.WithBloomClassifier(classifier))
	}

	return &Handler{
		store:    s,
		config:   cfg,
		validate: model.NewValidator(),
		importer: importer.New(s, opts...),
		papers:   paper.NewGenerator(s, s),
		matcher:  similarity.New(cfg.SimilarityThreshold),
		jobs:     make(map[string]*importJob),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.csrfMiddleware)

		r.Post("/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)

		// Catalog reads are open to every role.
		r.Get("/api/courses", h.handleListCourses)
		r.Get("/api/courses/{courseID}/subjects", h.handleListSubjects)
		r.Get("/api/subjects/{subjectID}/units", h.handleListUnits)
		r.Get("/api/exam-types", h.handleListExamTypes)

		r.Group(func(r chi.Router) {
			r.Use(requirePermission(model.PermManageUsers))
			r.Get("/api/users", h.handleListUsers)
			r.Post("/api/users", h.handleCreateUser)
			r.Post("/api/users/{userID}/toggle", h.handleToggleUserActive)
		})

		r.With(requirePermission(model.PermManageCourses)).Post("/api/courses", h.handleCreateCourse)
		r.With(requirePermission(model.PermManageCourses)).Post("/api/exam-types", h.handleCreateExamType)
		r.With(requirePermission(model.PermManageSubjects)).Post("/api/courses/{courseID}/subjects", h.handleCreateSubject)
		r.With(requirePermission(model.PermManageSubjects)).Post("/api/subjects/{subjectID}/units", h.handleCreateUnit)

		r.With(requirePermission(model.PermManageBlueprints)).Post("/api/blueprints", h.handleCreateBlueprint)
		r.With(requirePermission(model.PermViewBlueprints)).Get("/api/subjects/{subjectID}/blueprints", h.handleListBlueprints)
		r.With(requirePermission(model.PermViewBlueprints)).Get("/api/blueprints/{blueprintID}", h.handleGetBlueprint)

		r.Group(func(r chi.Router) {
			r.Use(requirePermission(model.PermCreateQuestions))
			r.Post("/api/units/{unitID}/questions", h.handleCreateQuestion)
			r.Post("/api/imports", h.handleCreateImport)
			r.Get("/api/imports/{jobID}", h.handleGetImport)
			r.Post("/api/subjects/{subjectID}/duplicates", h.handleCheckDuplicate)
		})
		r.With(requirePermission(model.PermViewQuestions)).Get("/api/subjects/{subjectID}/questions", h.handleSearchQuestions)
		r.With(requirePermission(model.PermViewAnalytics)).Get("/api/subjects/{subjectID}/stats", h.handleQuestionStats)

		r.With(requirePermission(model.PermGeneratePapers)).Post("/api/blueprints/{blueprintID}/paper", h.handleGeneratePaper)
		r.With(requirePermission(model.PermExportPapers)).Get("/api/blueprints/{blueprintID}/paper.txt", h.handleExportPaper)
	})
}

// Cleanup drops finished import jobs older than the retention window.
func (h *Handler) Cleanup(now time.Time) {
	if n := h.PruneJobs(now.Add(-h.config.JobRetention)); n > 0 {
		slog.Info("pruned finished import jobs", "count", n)
	}
}

// Wait blocks until every background import has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localized JSON error.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorBody{Error: appI18n.T(r.Context(), msgID)})
}

func writeErrorData(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	writeJSON(w, status, errorBody{Error: appI18n.Td(r.Context(), msgID, data)})
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return false
	}
	return true
}

// validateBody runs struct validation and reports failures as 400.
func (h *Handler) validateBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		internalError(w, r, "validate request", err)
		return false
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	writeErrorData(w, r, http.StatusBadRequest, "ValidationFailed",
		map[string]any{"Details": strings.Join(details, ", ")})
	return false
}

func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return 0, false
	}
	return id, true
}

// subjectFromURL resolves {subjectID}, answering 404 if it does not exist.
func (h *Handler) subjectFromURL(w http.ResponseWriter, r *http.Request) (*model.Subject, bool) {
	id, ok := urlID(w, r, "subjectID")
	if !ok {
		return nil, false
	}
	sub, err := h.store.GetSubject(r.Context(), id)
	if err != nil {
		internalError(w, r, "failed to get subject", err)
		return nil, false
	}
	if sub == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return nil, false
	}
	return sub, true
}
