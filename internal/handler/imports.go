package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appI18n "github.com/qngenius/qngenius/internal/i18n"
	"github.com/qngenius/qngenius/internal/importer"
	"github.com/qngenius/qngenius/internal/model"
)

type jobState string

const (
	jobRunning jobState = "running"
	jobDone    jobState = "done"
	jobFailed  jobState = "failed"
)

// importJob tracks one background import. Guarded by Handler.jobsMu.
type importJob struct {
	ID         string            `json:"id"`
	File       string            `json:"file"`
	State      jobState          `json:"state"`
	Progress   importer.Progress `json:"progress"`
	Fraction   float64           `json:"fraction"`
	Summary    importer.Summary  `json:"summary"`
	Result     importer.Result   `json:"result"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Rejected   []importer.Row    `json:"rejected,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	owner      int64
}

type previewResponse struct {
	Summary importer.Summary `json:"summary"`
	Rows    []importer.Row   `json:"rows"`
}

func (h *Handler) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErrorData(w, r, http.StatusRequestEntityTooLarge, "FileTooLarge",
				map[string]any{"Limit": h.config.MaxUploadSize})
			return
		}
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "FileRequired")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		internalError(w, r, "failed to read upload", err)
		return
	}

	unitID, err := strconv.ParseInt(r.FormValue("unit_id"), 10, 64)
	if err != nil || unitID <= 0 {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
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
	if v := r.FormValue("subject_id"); v != "" {
		subjectID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || subjectID != unit.SubjectID {
			writeError(w, r, http.StatusBadRequest, "UnitNotInSubject")
			return
		}
	}

	user := model.UserFromContext(r.Context())
	opts := importer.Options{
		SubjectID:       unit.SubjectID,
		UnitID:          unit.ID,
		CreatedBy:       user.ID,
		CheckDuplicates: formBool(r, "check_duplicates", true),
		SkipInvalid:     formBool(r, "skip_invalid", true),
	}
	dryRun := formBool(r, "dry_run", false)

	hash := importer.Hash(data)
	if !dryRun {
		stored, err := h.store.GetImportedFileHash(header.Filename, unit.ID)
		if err != nil {
			internalError(w, r, "failed to check import status", err)
			return
		}
		if stored == hash {
			writeJSON(w, http.StatusOK, map[string]string{
				"state":   "unchanged",
				"message": appI18n.Td(r.Context(), "FileAlreadyImported", map[string]any{"Name": header.Filename}),
			})
			return
		}
	}

	rows, err := importer.ReadCSV(bytes.NewReader(data))
	if err != nil {
		slog.Warn("unreadable upload", "file", header.Filename, "error", err)
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	if dryRun {
		previewed, err := h.importer.Preview(r.Context(), rows, opts)
		if err != nil {
			internalError(w, r, "failed to preview import", err)
			return
		}
		writeJSON(w, http.StatusOK, previewResponse{Summary: importer.Summarize(previewed), Rows: nonNil(previewed)})
		return
	}

	job := &importJob{
		ID:        uuid.NewString(),
		File:      header.Filename,
		State:     jobRunning,
		Message:   appI18n.T(r.Context(), "ImportStarted"),
		StartedAt: time.Now(),
		owner:     user.ID,
	}
	h.jobsMu.Lock()
	h.jobs[job.ID] = job
	snapshot := *job
	h.jobsMu.Unlock()

	slog.Info("import started", "job", job.ID, "file", header.Filename, "rows", len(rows), "unit_id", unit.ID)

	// The import outlives the request and cannot be cancelled.
	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go h.runImport(ctx, job.ID, header.Filename, hash, rows, opts)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (h *Handler) runImport(ctx context.Context, id, name, hash string, rows []importer.Row, opts importer.Options) {
	defer h.wg.Done()

	previewed, err := h.importer.Preview(ctx, rows, opts)
	if err != nil {
		h.finishJob(ctx, id, importer.Result{}, err)
		return
	}
	var rejected []importer.Row
	for _, row := range previewed {
		if !importer.Include(row.Status, opts.SkipInvalid) {
			rejected = append(rejected, row)
		}
	}
	h.updateJob(id, func(j *importJob) {
		j.Summary = importer.Summarize(previewed)
		j.Rejected = rejected
	})

	res, err := h.importer.Commit(ctx, previewed, opts, func(p importer.Progress) {
		h.updateJob(id, func(j *importJob) {
			j.Progress = p
			j.Fraction = p.Fraction()
		})
	})
	if err == nil {
		if herr := h.store.SetImportedFileHash(name, opts.UnitID, hash); herr != nil {
			slog.Error("failed to record import", "file", name, "error", herr)
		}
	}
	h.finishJob(ctx, id, res, err)
}

func (h *Handler) finishJob(ctx context.Context, id string, res importer.Result, err error) {
	now := time.Now()
	h.updateJob(id, func(j *importJob) {
		j.Result = res
		j.FinishedAt = &now
		if err != nil {
			j.State = jobFailed
			j.Error = err.Error()
			j.Message = appI18n.Td(ctx, "ImportFailed", map[string]any{"Error": err.Error()})
			return
		}
		j.State = jobDone
		j.Fraction = 1
		j.Message = appI18n.Tp(ctx, "QuestionsImported", res.Imported)
	})
	if err != nil {
		slog.Error("import failed", "job", id, "imported", res.Imported, "error", err)
		return
	}
	slog.Info("import finished", "job", id, "imported", res.Imported, "skipped", res.Skipped)
}

func (h *Handler) updateJob(id string, fn func(*importJob)) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	if j, ok := h.jobs[id]; ok {
		fn(j)
	}
}

func (h *Handler) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	user := model.UserFromContext(r.Context())
	h.jobsMu.Lock()
	j, ok := h.jobs[id]
	var snapshot importJob
	if ok {
		snapshot = *j
	}
	h.jobsMu.Unlock()

	// Jobs are visible to the user who started them and to admins.
	if !ok || (snapshot.owner != user.ID && user.Role != model.UserRoleAdmin) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func formBool(r *http.Request, name string, def bool) bool {
	v := r.FormValue(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// PruneJobs forgets finished imports that ended before cutoff and returns
// how many were removed. Running jobs are kept.
func (h *Handler) PruneJobs(cutoff time.Time) int {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	n := 0
	for id, j := range h.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(h.jobs, id)
			n++
		}
	}
	return n
}
