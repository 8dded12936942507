// Package importer validates spreadsheet rows of questions, screens them for
// duplicates against the bank and commits the accepted ones in batches.
package importer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/qngenius/qngenius/internal/model"
)

// Status is the outcome of validating one row.
type Status string

const (
	StatusValid        Status = "Valid"
	StatusDuplicate    Status = "Duplicate"
	StatusMarksWarning Status = "Warning: Invalid marks value"

	invalidPrefix = "Invalid: "
)

// IsInvalid reports whether the status carries validation errors.
func (s Status) IsInvalid() bool {
	return strings.HasPrefix(string(s), invalidPrefix)
}

// Invalid builds an invalid status from the given reasons.
func Invalid(reasons ...string) Status {
	return Status(invalidPrefix + strings.Join(reasons, ", "))
}

const minTextLength = 10

const (
	colText = iota
	colType
	colMarks
	colDifficulty
	colBloom
	colKeywords
)

// Row is one spreadsheet row awaiting import.
type Row struct {
	Line       int    `json:"line"`
	Text       string `json:"text"`
	Type       string `json:"type"`
	Marks      int    `json:"marks"`
	Difficulty string `json:"difficulty"`
	BloomLevel string `json:"bloom_level"`
	Keywords   string `json:"keywords"`
	Status     Status `json:"status"`
	// Unit names the unit on export; imports file rows under Options.UnitID.
	Unit string `json:"unit,omitempty"`
	// DuplicateOf is the ID of the stored question a duplicate row matched.
	DuplicateOf int64 `json:"duplicate_of,omitempty"`
}

// ParseRow maps positional cells [text, type, marks, difficulty, bloom,
// keywords] to a Row. Missing cells are empty. Marks that are not an integer
// become 0 with a warning status; Validate later replaces that status.
func ParseRow(line int, cells []string) Row {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	r := Row{
		Line:       line,
		Text:       cell(colText),
		Type:       cell(colType),
		Difficulty: cell(colDifficulty),
		BloomLevel: cell(colBloom),
		Keywords:   cell(colKeywords),
		Status:     StatusValid,
	}
	if raw := cell(colMarks); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil {
			r.Status = StatusMarksWarning
		} else {
			r.Marks = m
		}
	}
	return r
}

// IsBlank reports whether every cell is empty after trimming.
func IsBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Validate checks a row and returns it with Status set to Valid or to an
// Invalid status listing every failed check.
func Validate(r Row) Row {
	var errs []string

	text := strings.TrimSpace(r.Text)
	switch {
	case text == "":
		errs = append(errs, "Question text is required")
	case utf8.RuneCountInString(text) < minTextLength:
		errs = append(errs, "Question text too short")
	}

	switch {
	case strings.TrimSpace(r.Type) == "":
		errs = append(errs, "Question type is required")
	case !model.IsValidQuestionType(r.Type):
		errs = append(errs, "Invalid question type")
	}

	switch {
	case r.Marks <= 0:
		errs = append(errs, "Marks must be greater than 0")
	case r.Marks > 100:
		errs = append(errs, "Marks seem too high (>100)")
	}

	switch {
	case strings.TrimSpace(r.Difficulty) == "":
		errs = append(errs, "Difficulty level is required")
	case !model.IsValidDifficulty(r.Difficulty):
		errs = append(errs, "Invalid difficulty level")
	}

	if strings.TrimSpace(r.BloomLevel) != "" && !model.IsValidBloomLevel(r.BloomLevel) {
		errs = append(errs, "Invalid Bloom taxonomy level")
	}

	if len(errs) == 0 {
		r.Status = StatusValid
	} else {
		r.Status = Invalid(errs...)
	}
	return r
}

// Include decides whether a row goes into the import batch. Valid rows always
// do. With skipInvalid set nothing else does; without it everything except
// duplicates does.
func Include(s Status, skipInvalid bool) bool {
	if s == StatusValid {
		return true
	}
	if skipInvalid {
		return false
	}
	return s != StatusDuplicate
}

// Question converts the row into a question filed under unitID.
func (r Row) Question(unitID, createdBy int64) model.Question {
	return model.Question{
		UnitID:     unitID,
		Text:       r.Text,
		Type:       model.QuestionType(r.Type),
		Marks:      r.Marks,
		Difficulty: model.Difficulty(r.Difficulty),
		BloomLevel: model.BloomLevel(r.BloomLevel),
		Keywords:   r.Keywords,
		CreatedBy:  createdBy,
	}
}
