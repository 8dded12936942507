package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/qngenius/qngenius/internal/model"
)

type key struct {
	marks      int
	difficulty model.Difficulty
	bloom      model.BloomLevel
}

// fakeSource returns questions in insertion order so results are reproducible.
type fakeSource struct {
	bank  map[key][]model.Question
	calls []model.Difficulty
	err   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{bank: make(map[key][]model.Question)}
}

func (f *fakeSource) add(n, marks int, d model.Difficulty, b model.BloomLevel) {
	k := key{marks, d, b}
	for i := 0; i < n; i++ {
		id := int64(len(f.bank[k]) + 1)
		f.bank[k] = append(f.bank[k], model.Question{
			ID:         id,
			Text:       fmt.Sprintf("%s %s question %d", d, b, id),
			Marks:      marks,
			Difficulty: d,
			BloomLevel: b,
		})
	}
}

func (f *fakeSource) QueryByCriteria(_ context.Context, _ int64, marks int, d model.Difficulty, b model.BloomLevel, limit int) ([]model.Question, error) {
	f.calls = append(f.calls, d)
	if f.err != nil {
		return nil, f.err
	}
	qs := f.bank[key{marks, d, b}]
	if len(qs) > limit {
		qs = qs[:limit]
	}
	return append([]model.Question(nil), qs...), nil
}

func criterion(count, marks int, d model.Difficulty, b model.BloomLevel) model.BlueprintCriterion {
	return model.BlueprintCriterion{
		QuestionType:     model.TypeShortAnswer,
		Count:            count,
		MarksPerQuestion: marks,
		Difficulty:       d,
		BloomLevel:       b,
	}
}

func TestSampleExactMatch(t *testing.T) {
	src := newFakeSource()
	src.add(6, 5, model.DifficultyMedium, model.BloomApply)
	s := NewSampler(src)

	got, err := s.Sample(context.Background(), 1, []model.BlueprintCriterion{
		criterion(5, 5, model.DifficultyMedium, model.BloomApply),
	})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(got))
	}
	if len(src.calls) != 1 {
		t.Errorf("expected 1 query, got %d", len(src.calls))
	}
}

func TestSampleRelaxesDifficulty(t *testing.T) {
	src := newFakeSource()
	src.add(3, 5, model.DifficultyMedium, model.BloomApply)
	src.add(4, 5, model.DifficultyEasy, model.BloomApply)
	s := NewSampler(src)

	draws, err := s.SampleEach(context.Background(), 1, []model.BlueprintCriterion{
		criterion(5, 5, model.DifficultyMedium, model.BloomApply),
	})
	if err != nil {
		t.Fatalf("SampleEach: %v", err)
	}
	d := draws[0]
	if len(d.Questions) != 4 {
		t.Fatalf("expected the 4 Easy questions, got %d", len(d.Questions))
	}
	for _, q := range d.Questions {
		if q.Difficulty != model.DifficultyEasy {
			t.Errorf("expected Easy question, got %s", q.Difficulty)
		}
	}
	if !d.Relaxed() {
		t.Error("expected draw to be marked relaxed")
	}
	if d.Shortfall() != 1 {
		t.Errorf("expected shortfall 1, got %d", d.Shortfall())
	}
}

func TestSampleRelaxationOrder(t *testing.T) {
	src := newFakeSource()
	src.add(2, 10, model.DifficultyMedium, model.BloomCreate)
	src.add(2, 10, model.DifficultyEasy, model.BloomCreate)
	s := NewSampler(src)

	got, err := s.Sample(context.Background(), 1, []model.BlueprintCriterion{
		criterion(3, 10, model.DifficultyHard, model.BloomCreate),
	})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 2 || got[0].Difficulty != model.DifficultyEasy {
		t.Fatalf("expected Easy to be tried before Medium, got %+v", got)
	}
	want := []model.Difficulty{model.DifficultyHard, model.DifficultyEasy}
	if fmt.Sprint(src.calls) != fmt.Sprint(want) {
		t.Errorf("query order = %v, want %v", src.calls, want)
	}
}

func TestSampleFallsBackToOriginal(t *testing.T) {
	src := newFakeSource()
	src.add(2, 5, model.DifficultyHard, model.BloomRemember)
	s := NewSampler(src)

	draws, err := s.SampleEach(context.Background(), 1, []model.BlueprintCriterion{
		criterion(4, 5, model.DifficultyHard, model.BloomRemember),
	})
	if err != nil {
		t.Fatalf("SampleEach: %v", err)
	}
	if len(draws[0].Questions) != 2 {
		t.Fatalf("expected the 2 original questions, got %d", len(draws[0].Questions))
	}
	if draws[0].Relaxed() {
		t.Error("fallback to the original query should not be marked relaxed")
	}
	want := []model.Difficulty{model.DifficultyHard, model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}
	if fmt.Sprint(src.calls) != fmt.Sprint(want) {
		t.Errorf("query order = %v, want %v", src.calls, want)
	}
}

func TestSampleNoMatches(t *testing.T) {
	s := NewSampler(newFakeSource())
	draws, err := s.SampleEach(context.Background(), 1, []model.BlueprintCriterion{
		criterion(5, 5, model.DifficultyMedium, model.BloomApply),
	})
	if err != nil {
		t.Fatalf("SampleEach: %v", err)
	}
	if len(draws) != 1 || len(draws[0].Questions) != 0 {
		t.Fatalf("expected one empty draw, got %+v", draws)
	}
	if draws[0].Shortfall() != 5 {
		t.Errorf("expected shortfall 5, got %d", draws[0].Shortfall())
	}
}

func TestSampleZeroCriteria(t *testing.T) {
	src := newFakeSource()
	got, err := NewSampler(src).Sample(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no queries, got %d", len(src.calls))
	}
}

func TestSampleStorageError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("disk on fire")
	_, err := NewSampler(src).Sample(context.Background(), 1, []model.BlueprintCriterion{
		criterion(1, 5, model.DifficultyEasy, ""),
	})
	if !errors.Is(err, src.err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if len(src.calls) != 1 {
		t.Errorf("expected no retry, got %d calls", len(src.calls))
	}
}

func TestAssemble(t *testing.T) {
	criteria := []model.BlueprintCriterion{
		criterion(2, 2, model.DifficultyEasy, ""),
		criterion(1, 5, model.DifficultyHard, ""),
	}
	byCriterion := [][]model.Question{
		{{Text: "Define entropy.", Marks: 2}, {Text: "State Ohm's law.", Marks: 2}},
		{{Text: "Derive the ideal gas law.", Marks: 5}},
	}
	got := Assemble(criteria, byCriterion)
	want := "Q1. Define entropy. (Marks: 2)\n" +
		"Q2. State Ohm's law. (Marks: 2)\n" +
		"Q3. Derive the ideal gas law. (Marks: 5)\n"
	if got != want {
		t.Errorf("Assemble() =\n%s\nwant\n%s", got, want)
	}

	if got := Assemble(nil, nil); got != "" {
		t.Errorf("Assemble(nil) = %q, want empty", got)
	}

	partial := Assemble(criteria, [][]model.Question{nil, {{Text: "Only one", Marks: 5}}})
	if partial != "Q1. Only one (Marks: 5)\n" {
		t.Errorf("partial paper = %q", partial)
	}
}

type fakeBlueprints map[int64]*model.Blueprint

func (f fakeBlueprints) GetBlueprint(_ context.Context, id int64) (*model.Blueprint, error) {
	return f[id], nil
}

func TestGenerate(t *testing.T) {
	src := newFakeSource()
	src.add(2, 2, model.DifficultyEasy, model.BloomRemember)
	src.add(1, 5, model.DifficultyMedium, model.BloomAnalyze)

	bp := &model.Blueprint{
		ID: 7, SubjectID: 3, Title: "Mid Term", TotalMarks: 9, DurationMinutes: 60,
		Sections: []model.BlueprintSection{
			{Name: "A", Criteria: []model.BlueprintCriterion{criterion(2, 2, model.DifficultyEasy, model.BloomRemember)}},
			{Name: "B", Criteria: []model.BlueprintCriterion{criterion(2, 5, model.DifficultyHard, model.BloomAnalyze)}},
		},
	}
	g := NewGenerator(fakeBlueprints{7: bp}, src)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	p, err := g.Generate(context.Background(), 7)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if lines := strings.Count(p.Body, "\n"); lines != 3 {
		t.Errorf("expected 3 lines, got %d:\n%s", lines, p.Body)
	}
	if !strings.HasPrefix(p.Body, "Q1. ") || !strings.Contains(p.Body, "Q3. ") {
		t.Errorf("unexpected numbering:\n%s", p.Body)
	}
	if len(p.Criteria) != 2 {
		t.Fatalf("expected 2 criterion reports, got %d", len(p.Criteria))
	}
	if !p.Criteria[1].Relaxed || p.Criteria[1].Drawn != 1 || p.Criteria[1].Requested != 2 {
		t.Errorf("unexpected report for second criterion: %+v", p.Criteria[1])
	}
	if p.Questions[2].Number != 3 {
		t.Errorf("expected third question numbered 3, got %d", p.Questions[2].Number)
	}
	if !p.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v", p.GeneratedAt)
	}

	if _, err := g.Generate(context.Background(), 99); !errors.Is(err, ErrBlueprintNotFound) {
		t.Errorf("expected ErrBlueprintNotFound, got %v", err)
	}
}
