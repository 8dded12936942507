package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/qngenius/qngenius/internal/model"
)

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,max=64"`
	DisplayName string         `json:"display_name" validate:"max=200"`
	Password    string         `json:"password" validate:"required,min=8"`
	Role        model.UserRole `json:"role" validate:"required,oneof=admin coe faculty"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		internalError(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) || !h.validateBody(w, r, &req) {
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, r, "failed to get user", err)
		return
	}
	if existing != nil {
		writeErrorData(w, r, http.StatusConflict, "ValidationFailed",
			map[string]any{"Details": "username already taken"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	id, err := h.store.CreateUser(u)
	if err != nil {
		internalError(w, r, "failed to create user", err)
		return
	}
	u.ID = id
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "userID")
	if !ok {
		return
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	u, err := h.store.GetUserByID(id)
	if err != nil {
		internalError(w, r, "failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		internalError(w, r, "failed to toggle user active", err)
		return
	}
	u.Active = !u.Active
	slog.Info("toggled user", "id", id, "active", u.Active)
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.store.ListCourses(r.Context())
	if err != nil {
		internalError(w, r, "failed to list courses", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(courses))
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var c model.Course
	if !decodeJSON(w, r, &c) || !h.validateBody(w, r, &c) {
		return
	}
	id, err := h.store.CreateCourse(r.Context(), c)
	if err != nil {
		internalError(w, r, "failed to create course", err)
		return
	}
	c.ID = id
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(w, r, "courseID")
	if !ok {
		return
	}
	subjects, err := h.store.ListSubjects(r.Context(), courseID)
	if err != nil {
		internalError(w, r, "failed to list subjects", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(subjects))
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(w, r, "courseID")
	if !ok {
		return
	}
	course, err := h.store.GetCourse(r.Context(), courseID)
	if err != nil {
		internalError(w, r, "failed to get course", err)
		return
	}
	if course == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}

	var sub model.Subject
	if !decodeJSON(w, r, &sub) || !h.validateBody(w, r, &sub) {
		return
	}
	sub.CourseID = courseID
	id, err := h.store.CreateSubject(r.Context(), sub)
	if err != nil {
		internalError(w, r, "failed to create subject", err)
		return
	}
	sub.ID = id
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}
	units, err := h.store.ListUnits(r.Context(), sub.ID)
	if err != nil {
		internalError(w, r, "failed to list units", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(units))
}

func (h *Handler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}
	var u model.Unit
	if !decodeJSON(w, r, &u) || !h.validateBody(w, r, &u) {
		return
	}
	u.SubjectID = sub.ID
	id, err := h.store.CreateUnit(r.Context(), u)
	if err != nil {
		internalError(w, r, "failed to create unit", err)
		return
	}
	u.ID = id
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleListExamTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListExamTypes(r.Context())
	if err != nil {
		internalError(w, r, "failed to list exam types", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(types))
}

func (h *Handler) handleCreateExamType(w http.ResponseWriter, r *http.Request) {
	var et model.ExamType
	if !decodeJSON(w, r, &et) || !h.validateBody(w, r, &et) {
		return
	}
	id, err := h.store.CreateExamType(r.Context(), et)
	if err != nil {
		internalError(w, r, "failed to create exam type", err)
		return
	}
	et.ID = id
	writeJSON(w, http.StatusCreated, et)
}

func (h *Handler) handleCreateBlueprint(w http.ResponseWriter, r *http.Request) {
	var bp model.Blueprint
	if !decodeJSON(w, r, &bp) || !h.validateBody(w, r, &bp) {
		return
	}
	sub, err := h.store.GetSubject(r.Context(), bp.SubjectID)
	if err != nil {
		internalError(w, r, "failed to get subject", err)
		return
	}
	if sub == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	if marks := bp.CriteriaMarks(); marks != bp.TotalMarks {
		// Custom blueprints may be drafted before every section is filled in.
		slog.Warn("blueprint criteria marks differ from total",
			"title", bp.Title, "criteria_marks", marks, "total_marks", bp.TotalMarks)
	}

	id, err := h.store.CreateBlueprint(r.Context(), bp)
	if err != nil {
		internalError(w, r, "failed to create blueprint", err)
		return
	}
	created, err := h.store.GetBlueprint(r.Context(), id)
	if err != nil {
		internalError(w, r, "failed to reload blueprint", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListBlueprints(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}
	var examTypeID int64
	if v := r.URL.Query().Get("exam_type"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "BadRequest")
			return
		}
		examTypeID = id
	}
	bps, err := h.store.ListBlueprints(r.Context(), sub.ID, examTypeID)
	if err != nil {
		internalError(w, r, "failed to list blueprints", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bps))
}

func (h *Handler) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "blueprintID")
	if !ok {
		return
	}
	bp, err := h.store.GetBlueprint(r.Context(), id)
	if err != nil {
		internalError(w, r, "failed to get blueprint", err)
		return
	}
	if bp == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
