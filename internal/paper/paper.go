package paper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qngenius/qngenius/internal/model"
)

// ErrBlueprintNotFound is returned when a blueprint ID does not exist.
var ErrBlueprintNotFound = errors.New("blueprint not found")

// Assemble numbers the questions of each criterion in order, one per line,
// as "Q<n>. <text> (Marks: <marks>)". The counter runs across criteria.
// Results beyond len(criteria) are ignored.
func Assemble(criteria []model.BlueprintCriterion, questionsByCriterion [][]model.Question) string {
	var sb strings.Builder
	n := 1
	for i := range criteria {
		if i >= len(questionsByCriterion) {
			break
		}
		for _, q := range questionsByCriterion[i] {
			writeLine(&sb, n, q)
			n++
		}
	}
	return sb.String()
}

func writeLine(sb *strings.Builder, n int, q model.Question) {
	sb.WriteString("Q")
	sb.WriteString(strconv.Itoa(n))
	sb.WriteString(". ")
	sb.WriteString(q.Text)
	sb.WriteString(" (Marks: ")
	sb.WriteString(strconv.Itoa(q.Marks))
	sb.WriteString(")\n")
}

// BlueprintSource loads a blueprint with its sections and criteria.
type BlueprintSource interface {
	GetBlueprint(ctx context.Context, id int64) (*model.Blueprint, error)
}

// Generator builds complete papers from stored blueprints.
type Generator struct {
	blueprints BlueprintSource
	sampler    *Sampler
	now        func() time.Time
}

// NewGenerator wires a Generator to its collaborators.
func NewGenerator(bp BlueprintSource, src QuestionSource) *Generator {
	return &Generator{blueprints: bp, sampler: NewSampler(src), now: time.Now}
}

// Generate samples questions for the blueprint and assembles the paper.
func (g *Generator) Generate(ctx context.Context, blueprintID int64) (*model.PaperExport, error) {
	bp, err := g.blueprints.GetBlueprint(ctx, blueprintID)
	if err != nil {
		return nil, fmt.Errorf("load blueprint %d: %w", blueprintID, err)
	}
	if bp == nil {
		return nil, ErrBlueprintNotFound
	}

	criteria := bp.Criteria()
	draws, err := g.sampler.SampleEach(ctx, bp.SubjectID, criteria)
	if err != nil {
		return nil, fmt.Errorf("sample blueprint %d: %w", blueprintID, err)
	}

	byCriterion := make([][]model.Question, len(draws))
	export := &model.PaperExport{
		BlueprintID:     bp.ID,
		Title:           bp.Title,
		TotalMarks:      bp.TotalMarks,
		DurationMinutes: bp.DurationMinutes,
		GeneratedAt:     g.now(),
		Criteria:        make([]model.CriterionDraw, 0, len(draws)),
		Questions:       []model.PaperQuestion{},
	}
	n := 1
	for i, d := range draws {
		byCriterion[i] = d.Questions
		export.Criteria = append(export.Criteria, model.CriterionDraw{
			CriterionID: d.Criterion.ID,
			Requested:   d.Criterion.Count,
			Drawn:       len(d.Questions),
			Difficulty:  d.Difficulty,
			Relaxed:     d.Relaxed(),
		})
		for _, q := range d.Questions {
			export.Questions = append(export.Questions, model.PaperQuestion{
				Number:     n,
				QuestionID: q.ID,
				Text:       q.Text,
				Marks:      q.Marks,
				Type:       q.Type,
				Difficulty: q.Difficulty,
			})
			n++
		}
	}
	export.Body = Assemble(criteria, byCriterion)
	return export, nil
}
