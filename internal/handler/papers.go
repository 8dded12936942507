package handler

import (
	"errors"
	"fmt"
	"net/http"

	appI18n "github.com/qngenius/qngenius/internal/i18n"
	"github.com/qngenius/qngenius/internal/model"
	"github.com/qngenius/qngenius/internal/paper"
)

type paperResponse struct {
	*model.PaperExport
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) (*model.PaperExport, bool) {
	id, ok := urlID(w, r, "blueprintID")
	if !ok {
		return nil, false
	}
	export, err := h.papers.Generate(r.Context(), id)
	if errors.Is(err, paper.ErrBlueprintNotFound) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return nil, false
	}
	if err != nil {
		internalError(w, r, "failed to generate paper", err)
		return nil, false
	}
	return export, true
}

func (h *Handler) handleGeneratePaper(w http.ResponseWriter, r *http.Request) {
	export, ok := h.generate(w, r)
	if !ok {
		return
	}
	resp := paperResponse{PaperExport: export}
	for i, c := range export.Criteria {
		if c.Drawn < c.Requested {
			resp.Warnings = append(resp.Warnings, appI18n.Td(r.Context(), "CriterionShortfall", map[string]any{
				"Criterion": i + 1,
				"Drawn":     c.Drawn,
				"Requested": c.Requested,
			}))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExportPaper(w http.ResponseWriter, r *http.Request) {
	export, ok := h.generate(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="paper-%d.txt"`, export.BlueprintID))
	_, _ = w.Write([]byte(export.Body))
}
