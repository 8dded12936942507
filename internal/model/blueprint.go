package model

// BlueprintCriterion is one rule of a blueprint section: draw Count questions
// worth MarksPerQuestion each at the given difficulty and Bloom level.
type BlueprintCriterion struct {
	ID               int64        `json:"id"`
	SectionID        int64        `json:"section_id"`
	QuestionType     QuestionType `json:"question_type" validate:"required,questiontype"`
	Count            int          `json:"count" validate:"gt=0"`
	MarksPerQuestion int          `json:"marks_per_question" validate:"gt=0"`
	Difficulty       Difficulty   `json:"difficulty" validate:"required,difficulty"`
	BloomLevel       BloomLevel   `json:"bloom_level" validate:"omitempty,bloom"`
}

// Marks is the total this criterion contributes when fully satisfied.
func (c BlueprintCriterion) Marks() int {
	return c.Count * c.MarksPerQuestion
}

// BlueprintSection groups criteria under a heading.
type BlueprintSection struct {
	ID          int64                `json:"id"`
	BlueprintID int64                `json:"blueprint_id"`
	Name        string               `json:"name" validate:"required,max=100"`
	Position    int                  `json:"position"`
	Criteria    []BlueprintCriterion `json:"criteria" validate:"dive"`
}

// Blueprint describes how a paper is built: ordered sections of criteria.
type Blueprint struct {
	ID              int64              `json:"id"`
	SubjectID       int64              `json:"subject_id" validate:"gt=0"`
	ExamTypeID      int64              `json:"exam_type_id" validate:"gt=0"`
	Title           string             `json:"title" validate:"required,max=200"`
	TotalMarks      int                `json:"total_marks" validate:"gt=0"`
	DurationMinutes int                `json:"duration_minutes" validate:"gt=0"`
	Custom          bool               `json:"custom"`
	Sections        []BlueprintSection `json:"sections,omitempty" validate:"dive"`
}

// Criteria flattens the sections into paper order.
func (b Blueprint) Criteria() []BlueprintCriterion {
	var out []BlueprintCriterion
	for _, s := range b.Sections {
		out = append(out, s.Criteria...)
	}
	return out
}

// CriteriaMarks sums the marks of every criterion.
func (b Blueprint) CriteriaMarks() int {
	total := 0
	for _, c := range b.Criteria() {
		total += c.Marks()
	}
	return total
}
