package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/qngenius/qngenius/internal/model"
	"github.com/qngenius/qngenius/internal/similarity"
)

type createQuestionRequest struct {
	Text       string             `json:"text" validate:"required,min=10"`
	Type       model.QuestionType `json:"type" validate:"required,questiontype"`
	Marks      int                `json:"marks" validate:"gt=0,lte=100"`
	Difficulty model.Difficulty   `json:"difficulty" validate:"required,difficulty"`
	BloomLevel model.BloomLevel   `json:"bloom_level" validate:"omitempty,bloom"`
	Keywords   string             `json:"keywords" validate:"max=500"`
}

type duplicateRequest struct {
	Text string `json:"text" validate:"required"`
}

type duplicateResponse struct {
	Duplicate  bool            `json:"duplicate"`
	Similarity float64         `json:"similarity,omitempty"`
	Match      *model.Question `json:"match,omitempty"`
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	unitID, ok := urlID(w, r, "unitID")
	if !ok {
		return
	}
	unit, err := h.store.GetUnit(r.Context(), unitID)
	if err != nil {
		internalError(w, r, "failed to get unit", err)
		return
	}
	if unit == nil {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}

	var req createQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if !h.validateBody(w, r, &req) {
		return
	}

	q := model.Question{
		UnitID:     unit.ID,
		Text:       req.Text,
		Type:       req.Type,
		Marks:      req.Marks,
		Difficulty: req.Difficulty,
		BloomLevel: req.BloomLevel,
		Keywords:   strings.TrimSpace(req.Keywords),
	}
	if u := model.UserFromContext(r.Context()); u != nil {
		q.CreatedBy = u.ID
	}
	id, err := h.store.InsertQuestion(r.Context(), q)
	if err != nil {
		internalError(w, r, "failed to insert question", err)
		return
	}
	q.ID = id
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}

	qv := r.URL.Query()
	f := model.QuestionSearch{
		Type:       model.QuestionType(qv.Get("type")),
		Difficulty: model.Difficulty(qv.Get("difficulty")),
		Keywords:   qv.Get("q"),
	}
	if f.Type != "" && !model.IsValidQuestionType(string(f.Type)) ||
		f.Difficulty != "" && !model.IsValidDifficulty(string(f.Difficulty)) {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	var err error
	if f.UnitID, err = queryInt64(qv.Get("unit")); err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	if f.MinMarks, err = queryIntPtr(qv.Get("min_marks")); err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	if f.MaxMarks, err = queryIntPtr(qv.Get("max_marks")); err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	qs, err := h.store.SearchQuestions(r.Context(), sub.ID, f)
	if err != nil {
		internalError(w, r, "failed to search questions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(qs))
}

func (h *Handler) handleQuestionStats(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}
	st, err := h.store.QuestionStats(r.Context(), sub.ID)
	if err != nil {
		internalError(w, r, "failed to compute question stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subjectFromURL(w, r)
	if !ok {
		return
	}
	var req duplicateRequest
	if !decodeJSON(w, r, &req) || !h.validateBody(w, r, &req) {
		return
	}

	existing, err := h.store.AllQuestions(r.Context(), sub.ID)
	if err != nil {
		internalError(w, r, "failed to load questions", err)
		return
	}
	match, found := h.matcher.FirstMatch(req.Text, existing)
	if !found {
		writeJSON(w, http.StatusOK, duplicateResponse{})
		return
	}
	writeJSON(w, http.StatusOK, duplicateResponse{
		Duplicate:  true,
		Similarity: similarity.Similarity(req.Text, match.Text),
		Match:      &match,
	})
}

func queryInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func queryIntPtr(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
