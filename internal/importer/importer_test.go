package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/qngenius/qngenius/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	existing []model.Question
	allErr   error
	failAt   int // 1-based batch number that fails; 0 never fails
	batches  [][]model.Question
}

func (f *fakeStore) AllQuestions(_ context.Context, _ int64) ([]model.Question, error) {
	return f.existing, f.allErr
}

func (f *fakeStore) InsertBatch(_ context.Context, qs []model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt == len(f.batches)+1 {
		return errors.New("disk full")
	}
	f.batches = append(f.batches, append([]model.Question(nil), qs...))
	return nil
}

type fakeClassifier struct {
	level model.BloomLevel
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeClassifier) ClassifyBloom(_ context.Context, _ string) (model.BloomLevel, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.level, f.err
}

func validRow(text string) Row {
	return Row{Text: text, Type: "Essay", Marks: 10, Difficulty: "Medium", Status: StatusValid}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want Status
	}{
		{"valid", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 10, Difficulty: "Medium"}, StatusValid},
		{"valid with bloom", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 10, Difficulty: "Medium", BloomLevel: "Understand"}, StatusValid},
		{"text too short", Row{Text: "Short", Type: "Essay", Marks: 10, Difficulty: "Medium"}, "Invalid: Question text too short"},
		{"marks too high", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 150, Difficulty: "Medium"}, "Invalid: Marks seem too high (>100)"},
		{"marks at limit", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 100, Difficulty: "Medium"}, StatusValid},
		{"zero marks", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 0, Difficulty: "Medium"}, "Invalid: Marks must be greater than 0"},
		{"text only whitespace", Row{Text: "   ", Type: "Essay", Marks: 5, Difficulty: "Easy"}, "Invalid: Question text is required"},
		{"unknown type", Row{Text: "Explain the water cycle in detail", Type: "Riddle", Marks: 5, Difficulty: "Easy"}, "Invalid: Invalid question type"},
		{"bad bloom", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 5, Difficulty: "Easy", BloomLevel: "Memorize"}, "Invalid: Invalid Bloom taxonomy level"},
		{"everything missing", Row{}, "Invalid: Question text is required, Question type is required, Marks must be greater than 0, Difficulty level is required"},
		{"case sensitive difficulty", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 5, Difficulty: "easy"}, "Invalid: Invalid difficulty level"},
		{"warning replaced", Row{Text: "Explain the water cycle in detail", Type: "Essay", Marks: 0, Difficulty: "Hard", Status: StatusMarksWarning}, "Invalid: Marks must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.row).Status
			if got != tt.want {
				t.Errorf("Validate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRow(t *testing.T) {
	r := ParseRow(3, []string{"  What is osmosis?  ", "Short Answer", "x5", "Easy"})
	if r.Line != 3 || r.Text != "What is osmosis?" {
		t.Errorf("ParseRow() = %+v", r)
	}
	if r.Marks != 0 || r.Status != StatusMarksWarning {
		t.Errorf("non-numeric marks: Marks = %d, Status = %q", r.Marks, r.Status)
	}
	if r.BloomLevel != "" || r.Keywords != "" {
		t.Errorf("missing cells should be empty, got %+v", r)
	}

	r = ParseRow(4, []string{"What is osmosis?", "Short Answer", "", "Easy"})
	if r.Marks != 0 || r.Status != StatusValid {
		t.Errorf("empty marks: Marks = %d, Status = %q", r.Marks, r.Status)
	}

	r = ParseRow(5, []string{"What is osmosis?", "Short Answer", " 7 ", "Easy", "Remember", "biology"})
	if r.Marks != 7 || r.BloomLevel != "Remember" || r.Keywords != "biology" {
		t.Errorf("full row = %+v", r)
	}
}

func TestInclude(t *testing.T) {
	tests := []struct {
		status      Status
		skipInvalid bool
		want        bool
	}{
		{StatusValid, true, true},
		{StatusValid, false, true},
		{StatusDuplicate, true, false},
		{StatusDuplicate, false, false},
		{Invalid("Question text too short"), true, false},
		{Invalid("Question text too short"), false, true},
		{StatusMarksWarning, false, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.status, tt.skipInvalid), func(t *testing.T) {
			if got := Include(tt.status, tt.skipInvalid); got != tt.want {
				t.Errorf("Include(%q, %v) = %v, want %v", tt.status, tt.skipInvalid, got, tt.want)
			}
		})
	}
}

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"Question,Type,Marks,Difficulty,Bloom,Keywords",
		`"Explain the water cycle, briefly",Essay,10,Medium,Understand,water`,
		",,,,,",
		"",
		"Define photosynthesis precisely,Short Answer,2,Easy",
		`Bad "quote" row,Essay,5,Easy`,
		"State Newton's second law,Short Answer,3,Hard",
	}, "\n")

	rows, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4: %+v", len(rows), rows)
	}
	if rows[0].Text != "Explain the water cycle, briefly" || rows[0].Line != 2 || rows[0].Keywords != "water" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].Type != "Short Answer" || rows[1].Line != 5 {
		t.Errorf("rows[1] = %+v", rows[1])
	}
	if !rows[2].Status.IsInvalid() || !strings.HasPrefix(rows[2].Text, "Error parsing row") {
		t.Errorf("malformed row = %+v", rows[2])
	}
	if rows[3].Text != "State Newton's second law" {
		t.Errorf("rows[3] = %+v", rows[3])
	}
}

func TestReadCSVEmpty(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestPreviewDuplicates(t *testing.T) {
	store := &fakeStore{existing: []model.Question{
		{ID: 7, Text: "Explain the water cycle in detail"},
	}}
	im := New(store)

	rows := []Row{
		validRow("Explain the water cycle in detail"),
		validRow("  EXPLAIN the water cycle in detail "),
		validRow("Describe the structure of an atom"),
	}
	got, err := im.Preview(context.Background(), rows, Options{CheckDuplicates: true})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != StatusDuplicate || got[0].DuplicateOf != 7 {
		t.Errorf("identical row = %q (dup of %d), want Duplicate of 7", got[0].Status, got[0].DuplicateOf)
	}
	if got[1].Status != StatusDuplicate {
		t.Errorf("case/space variant = %q, want Duplicate", got[1].Status)
	}
	if got[2].Status != StatusValid {
		t.Errorf("distinct row = %q, want Valid", got[2].Status)
	}
	if rows[0].Status != StatusValid || rows[0].DuplicateOf != 0 {
		t.Error("Preview should not modify its input")
	}

	sum := Summarize(got)
	if sum != (Summary{Total: 3, Valid: 1, Invalid: 2, Duplicates: 2}) {
		t.Errorf("Summarize() = %+v", sum)
	}
}

func TestPreviewWithoutDuplicateCheck(t *testing.T) {
	store := &fakeStore{existing: []model.Question{{ID: 1, Text: "Explain the water cycle in detail"}}}
	got, err := New(store).Preview(context.Background(),
		[]Row{validRow("Explain the water cycle in detail")}, Options{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != StatusValid {
		t.Errorf("status = %q, want Valid", got[0].Status)
	}
}

// An invalid row whose text matches a stored question loses its invalid
// reason and reads as Duplicate.
func TestPreviewDuplicateOverridesInvalid(t *testing.T) {
	store := &fakeStore{existing: []model.Question{{ID: 3, Text: "Explain the water cycle in detail"}}}
	row := Row{Text: "Explain the water cycle in detail", Type: "Riddle", Marks: 500, Difficulty: "Medium"}

	got, err := New(store).Preview(context.Background(), []Row{row}, Options{CheckDuplicates: true})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != StatusDuplicate {
		t.Errorf("status = %q, want Duplicate", got[0].Status)
	}
}

func TestPreviewCorpusErrorSkipsScreening(t *testing.T) {
	store := &fakeStore{allErr: errors.New("locked")}
	got, err := New(store).Preview(context.Background(),
		[]Row{validRow("Explain the water cycle in detail")}, Options{CheckDuplicates: true})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != StatusValid {
		t.Errorf("status = %q, want Valid", got[0].Status)
	}
}

func TestPreviewKeepsParseErrors(t *testing.T) {
	row := Row{Line: 4, Text: "Error parsing row 4", Status: Invalid("bare \" in non-quoted field")}
	got, err := New(&fakeStore{}).Preview(context.Background(), []Row{row}, Options{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != row.Status {
		t.Errorf("status = %q, want %q", got[0].Status, row.Status)
	}
}

func TestPreviewBloomSuggestion(t *testing.T) {
	cls := &fakeClassifier{level: model.BloomApply}
	im := New(&fakeStore{}, WithBloomClassifier(cls))

	withBloom := validRow("Explain the water cycle in detail")
	withBloom.BloomLevel = "Remember"
	rows := []Row{validRow("Calculate the area of a circle"), withBloom}

	got, err := im.Preview(context.Background(), rows, Options{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].BloomLevel != "Apply" {
		t.Errorf("suggested bloom = %q, want Apply", got[0].BloomLevel)
	}
	if got[1].BloomLevel != "Remember" {
		t.Errorf("given bloom overwritten: %q", got[1].BloomLevel)
	}
	if cls.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", cls.calls)
	}

	failing := New(&fakeStore{}, WithBloomClassifier(&fakeClassifier{err: errors.New("timeout")}))
	got, err = failing.Preview(context.Background(), []Row{validRow("Calculate the area of a circle")}, Options{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got[0].Status != StatusValid || got[0].BloomLevel != "" {
		t.Errorf("classifier failure should leave row untouched, got %+v", got[0])
	}
}

func rowsN(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = validRow(fmt.Sprintf("Generated question number %d", i))
	}
	return rows
}

func TestCommitBatches(t *testing.T) {
	store := &fakeStore{}
	im := New(store)

	var reports []Progress
	res, err := im.Commit(context.Background(), rowsN(120), Options{UnitID: 9, CreatedBy: 2}, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Imported != 120 || res.Batches != 3 {
		t.Errorf("Result = %+v, want 120 imported in 3 batches", res)
	}
	sizes := []int{len(store.batches[0]), len(store.batches[1]), len(store.batches[2])}
	if sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 20 {
		t.Errorf("batch sizes = %v, want [50 50 20]", sizes)
	}
	if q := store.batches[0][0]; q.UnitID != 9 || q.CreatedBy != 2 {
		t.Errorf("question not filed under unit/creator: %+v", q)
	}
	last := reports[len(reports)-1]
	if last.Fraction() != 1 || last.Done != 120 {
		t.Errorf("final progress = %+v", last)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].Done < reports[i-1].Done {
			t.Errorf("progress went backwards: %+v", reports)
		}
	}
}

func TestCommitFilter(t *testing.T) {
	rows := []Row{
		validRow("Explain the water cycle in detail"),
		{Text: "Describe the structure of an atom", Marks: 4, Status: Invalid("Question type is required")},
		{Text: "Explain the water cycle in detail", Marks: 4, Status: StatusDuplicate},
	}

	store := &fakeStore{}
	res, err := New(store).Commit(context.Background(), rows, Options{SkipInvalid: true}, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Imported != 1 || res.Skipped != 2 {
		t.Errorf("skip invalid: Result = %+v", res)
	}

	store = &fakeStore{}
	res, err = New(store).Commit(context.Background(), rows, Options{}, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 1 {
		t.Errorf("keep invalid: Result = %+v", res)
	}
}

func TestCommitBatchFailureStops(t *testing.T) {
	store := &fakeStore{failAt: 2}
	res, err := New(store, WithBatchSize(10)).Commit(context.Background(), rowsN(35), Options{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Imported != 10 || res.Batches != 1 {
		t.Errorf("Result = %+v, want first batch only", res)
	}
	if len(store.batches) != 1 {
		t.Errorf("stored batches = %d, want 1", len(store.batches))
	}
}

func TestCommitRejectsUnsavableBatch(t *testing.T) {
	rows := rowsN(3)
	rows[1] = Row{Text: "Explain the water cycle in detail", Marks: 0, Status: Invalid("Marks must be greater than 0")}

	store := &fakeStore{}
	_, err := New(store).Commit(context.Background(), rows, Options{}, nil)
	if !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("err = %v, want ErrInvalidBatch", err)
	}
	if len(store.batches) != 0 {
		t.Errorf("nothing should be stored, got %d batches", len(store.batches))
	}
}

func TestHash(t *testing.T) {
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("different content should hash differently")
	}
	if got := Hash(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Hash(nil) = %s", got)
	}
}

func TestWriteCSVReadsBack(t *testing.T) {
	rows := []Row{
		{Text: "Explain the water cycle, with a diagram", Type: "Essay", Marks: 10, Difficulty: "Medium", BloomLevel: "Understand", Keywords: "water, cycle", Unit: "Hydrology"},
		{Text: `Define "osmosis" precisely`, Type: "Short Answer", Marks: 2, Difficulty: "Easy", Unit: "Cells"},
	}
	var buf strings.Builder
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Question,Type,Marks,Difficulty,Bloom,Keywords,Unit\n") {
		t.Errorf("header missing: %q", buf.String())
	}

	got, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	for i, r := range got {
		want := rows[i]
		if r.Text != want.Text || r.Type != want.Type || r.Marks != want.Marks || r.Keywords != want.Keywords {
			t.Errorf("row %d = %+v, want %+v", i, r, want)
		}
		if r.Unit != "" {
			t.Errorf("row %d: imports should ignore the unit column, got %q", i, r.Unit)
		}
		if Validate(r).Status != StatusValid {
			t.Errorf("row %d should validate, got %q", i, Validate(r).Status)
		}
	}
}
