package model

import "time"

// PaperExport is the JSON structure returned for a generated paper.
type PaperExport struct {
	BlueprintID     int64           `json:"blueprint_id"`
	Title           string          `json:"title"`
	TotalMarks      int             `json:"total_marks"`
	DurationMinutes int             `json:"duration_minutes"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Body            string          `json:"body"`
	Criteria        []CriterionDraw `json:"criteria"`
	Questions       []PaperQuestion `json:"questions"`
}

// PaperQuestion is one numbered line of a generated paper.
type PaperQuestion struct {
	Number     int          `json:"number"`
	QuestionID int64        `json:"question_id"`
	Text       string       `json:"text"`
	Marks      int          `json:"marks"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
}

// CriterionDraw reports how well one criterion was satisfied.
type CriterionDraw struct {
	CriterionID int64      `json:"criterion_id"`
	Requested   int        `json:"requested"`
	Drawn       int        `json:"drawn"`
	Difficulty  Difficulty `json:"difficulty"`
	Relaxed     bool       `json:"relaxed"`
}
