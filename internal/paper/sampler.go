// Package paper draws questions for a blueprint's criteria and lays them out
// as a numbered question paper.
package paper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qngenius/qngenius/internal/model"
)

// QuestionSource is the part of the question store the sampler reads.
// Result order is chosen by the source and may be random.
type QuestionSource interface {
	QueryByCriteria(ctx context.Context, subjectID int64, marks int, difficulty model.Difficulty, bloom model.BloomLevel, limit int) ([]model.Question, error)
}

// Draw is the outcome for a single criterion.
type Draw struct {
	Criterion  model.BlueprintCriterion
	Questions  []model.Question
	Difficulty model.Difficulty // difficulty the questions were drawn at
}

// Relaxed reports whether the questions came from a different difficulty.
func (d Draw) Relaxed() bool {
	return d.Difficulty != d.Criterion.Difficulty
}

// Shortfall is how many questions the criterion is missing.
func (d Draw) Shortfall() int {
	if n := d.Criterion.Count - len(d.Questions); n > 0 {
		return n
	}
	return 0
}

// Sampler draws questions per criterion with difficulty relaxation.
type Sampler struct {
	src QuestionSource
}

// NewSampler creates a Sampler reading from src.
func NewSampler(src QuestionSource) *Sampler {
	return &Sampler{src: src}
}

// Sample returns the questions for every criterion, concatenated in order.
func (s *Sampler) Sample(ctx context.Context, subjectID int64, criteria []model.BlueprintCriterion) ([]model.Question, error) {
	draws, err := s.SampleEach(ctx, subjectID, criteria)
	if err != nil {
		return nil, err
	}
	var out []model.Question
	for _, d := range draws {
		out = append(out, d.Questions...)
	}
	return out, nil
}

// SampleEach returns one Draw per criterion, in criterion order. Any store
// error aborts the whole call.
func (s *Sampler) SampleEach(ctx context.Context, subjectID int64, criteria []model.BlueprintCriterion) ([]Draw, error) {
	draws := make([]Draw, 0, len(criteria))
	for i, c := range criteria {
		d, err := s.draw(ctx, subjectID, c)
		if err != nil {
			return nil, fmt.Errorf("criterion %d: %w", i+1, err)
		}
		if short := d.Shortfall(); short > 0 {
			slog.Warn("criterion partially fulfilled",
				"subject_id", subjectID, "criterion", i+1,
				"requested", c.Count, "drawn", len(d.Questions))
		}
		draws = append(draws, d)
	}
	return draws, nil
}

func (s *Sampler) draw(ctx context.Context, subjectID int64, c model.BlueprintCriterion) (Draw, error) {
	qs, err := s.query(ctx, subjectID, c, c.Difficulty)
	if err != nil {
		return Draw{}, err
	}
	if len(qs) >= c.Count {
		return Draw{Criterion: c, Questions: qs, Difficulty: c.Difficulty}, nil
	}

	slog.Debug("not enough questions, relaxing difficulty",
		"found", len(qs), "requested", c.Count, "difficulty", c.Difficulty)

	// The first other difficulty with any match wins, even if it holds fewer
	// questions than the original query returned.
	for _, d := range model.Difficulties {
		if d == c.Difficulty {
			continue
		}
		relaxed, err := s.query(ctx, subjectID, c, d)
		if err != nil {
			return Draw{}, err
		}
		if len(relaxed) > 0 {
			return Draw{Criterion: c, Questions: relaxed, Difficulty: d}, nil
		}
	}

	qs, err = s.query(ctx, subjectID, c, c.Difficulty)
	if err != nil {
		return Draw{}, err
	}
	return Draw{Criterion: c, Questions: qs, Difficulty: c.Difficulty}, nil
}

func (s *Sampler) query(ctx context.Context, subjectID int64, c model.BlueprintCriterion, d model.Difficulty) ([]model.Question, error) {
	qs, err := s.src.QueryByCriteria(ctx, subjectID, c.MarksPerQuestion, d, c.BloomLevel, c.Count)
	if err != nil {
		return nil, fmt.Errorf("query %s questions: %w", d, err)
	}
	return qs, nil
}
