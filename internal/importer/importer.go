package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qngenius/qngenius/internal/model"
	"github.com/qngenius/qngenius/internal/similarity"
)

// DefaultBatchSize is the number of questions written per transaction.
const DefaultBatchSize = 50

// ErrInvalidBatch is returned when a batch handed to the store still holds a
// question without text or with non-positive marks.
var ErrInvalidBatch = errors.New("invalid question in batch")

// Store is the persistence the importer needs.
type Store interface {
	InsertBatch(ctx context.Context, qs []model.Question) error
	AllQuestions(ctx context.Context, subjectID int64) ([]model.Question, error)
}

// BloomClassifier suggests a Bloom level for question text.
type BloomClassifier interface {
	ClassifyBloom(ctx context.Context, text string) (model.BloomLevel, error)
}

// Options controls one preview or commit.
type Options struct {
	SubjectID       int64
	UnitID          int64
	CreatedBy       int64
	CheckDuplicates bool
	SkipInvalid     bool
}

// Progress reports how far a commit has got.
type Progress struct {
	Message string `json:"message"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

// Fraction is Done/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Summary counts rows by outcome. Invalid covers every row that is not Valid.
type Summary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// Summarize counts the statuses of rows.
func Summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case StatusValid:
			s.Valid++
		case StatusDuplicate:
			s.Duplicates++
		}
	}
	s.Invalid = s.Total - s.Valid
	return s
}

// Result is the outcome of a commit.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Batches  int `json:"batches"`
}

// Importer previews and commits spreadsheet rows.
type Importer struct {
	store      Store
	matcher    *similarity.Matcher
	classifier BloomClassifier
	batchSize  int
	workers    int
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize sets the number of questions per transaction.
func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithThreshold sets the duplicate similarity threshold.
func WithThreshold(t float64) Option {
	return func(im *Importer) { im.matcher = similarity.New(t) }
}

// WithWorkers bounds how many rows are screened concurrently.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithBloomClassifier fills in missing Bloom levels before validation.
func WithBloomClassifier(c BloomClassifier) Option {
	return func(im *Importer) { im.classifier = c }
}

// New creates an Importer backed by store.
func New(store Store, opts ...Option) *Importer {
	im := &Importer{
		store:     store,
		matcher:   similarity.New(similarity.DefaultThreshold),
		batchSize: DefaultBatchSize,
		workers:   4,
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Preview validates rows and, when requested, marks those that duplicate a
// question already stored for the subject. The returned slice is a copy.
//
// Duplicate marking replaces whatever status validation gave the row, so an
// invalid row that also duplicates a stored question reads as Duplicate.
func (im *Importer) Preview(ctx context.Context, rows []Row, opts Options) ([]Row, error) {
	out := make([]Row, len(rows))
	copy(out, rows)

	var existing []model.Question
	if opts.CheckDuplicates {
		var err error
		existing, err = im.store.AllQuestions(ctx, opts.SubjectID)
		if err != nil {
			slog.Warn("could not load questions for duplicate check, skipping it",
				"subject_id", opts.SubjectID, "error", err)
			existing = nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i := range out {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = im.screen(gctx, out[i], existing)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("screen rows: %w", err)
	}
	return out, nil
}

func (im *Importer) screen(ctx context.Context, r Row, existing []model.Question) Row {
	// Rows that failed to parse keep their status.
	if r.Status.IsInvalid() {
		return r
	}
	if im.classifier != nil && r.BloomLevel == "" && strings.TrimSpace(r.Text) != "" {
		level, err := im.classifier.ClassifyBloom(ctx, r.Text)
		if err != nil {
			slog.Warn("bloom suggestion failed", "line", r.Line, "error", err)
		} else {
			r.BloomLevel = string(level)
		}
	}
	r = Validate(r)
	if len(existing) > 0 {
		if q, ok := im.matcher.FirstMatch(r.Text, existing); ok {
			r.Status = StatusDuplicate
			r.DuplicateOf = q.ID
		}
	}
	return r
}

// Commit inserts the rows Include accepts, batchSize at a time, each batch in
// its own transaction. A failing batch stops the import; batches already
// written stay written and are counted in the returned Result.
func (im *Importer) Commit(ctx context.Context, rows []Row, opts Options, progress func(Progress)) (Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	var res Result
	var pending []model.Question
	for _, r := range rows {
		if !Include(r.Status, opts.SkipInvalid) {
			res.Skipped++
			continue
		}
		pending = append(pending, r.Question(opts.UnitID, opts.CreatedBy))
	}

	total := len(pending)
	progress(Progress{Message: "Importing questions", Total: total})
	for start := 0; start < total; start += im.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+im.batchSize, total)
		batch := pending[start:end]
		if err := CheckBatch(batch); err != nil {
			return res, fmt.Errorf("batch %d: %w", res.Batches+1, err)
		}
		if err := im.store.InsertBatch(ctx, batch); err != nil {
			return res, fmt.Errorf("batch %d: %w", res.Batches+1, err)
		}
		res.Batches++
		res.Imported += len(batch)
		slog.Info("imported batch", "size", len(batch), "imported", res.Imported, "total", total)
		progress(Progress{
			Message: fmt.Sprintf("Imported %d of %d questions", res.Imported, total),
			Done:    res.Imported,
			Total:   total,
		})
	}
	progress(Progress{Message: "Import complete", Done: res.Imported, Total: total})
	return res, nil
}

// CheckBatch rejects a batch containing a question with blank text or
// non-positive marks.
func CheckBatch(qs []model.Question) error {
	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidBatch, i+1)
		}
		if q.Marks <= 0 {
			return fmt.Errorf("%w: question %d has marks %d", ErrInvalidBatch, i+1, q.Marks)
		}
	}
	return nil
}

// Hash returns the hex SHA-256 of an uploaded file, used to skip files that
// were already imported unchanged.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
