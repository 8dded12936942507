package model

// QuestionType is one of the fixed question formats.
type QuestionType string

const (
	TypeShortAnswer    QuestionType = "Short Answer"
	TypeLongAnswer     QuestionType = "Long Answer"
	TypeMultipleChoice QuestionType = "Multiple Choice"
	TypeCaseStudy      QuestionType = "Case Study"
	TypeEssay          QuestionType = "Essay"
	TypeNumerical      QuestionType = "Numerical"
)

// QuestionTypes lists every accepted question type.
var QuestionTypes = []QuestionType{
	TypeShortAnswer, TypeLongAnswer, TypeMultipleChoice,
	TypeCaseStudy, TypeEssay, TypeNumerical,
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties is the fixed difficulty order, also used as the relaxation order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// BloomLevel is a tag from Bloom's cognitive taxonomy.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "Remember"
	BloomUnderstand BloomLevel = "Understand"
	BloomApply      BloomLevel = "Apply"
	BloomAnalyze    BloomLevel = "Analyze"
	BloomEvaluate   BloomLevel = "Evaluate"
	BloomCreate     BloomLevel = "Create"
)

// BloomLevels lists the six taxonomy levels from lowest to highest.
var BloomLevels = []BloomLevel{
	BloomRemember, BloomUnderstand, BloomApply,
	BloomAnalyze, BloomEvaluate, BloomCreate,
}

// IsValidQuestionType reports whether s names a known question type.
// The comparison is exact.
func IsValidQuestionType(s string) bool {
	for _, t := range QuestionTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// IsValidDifficulty reports whether s names a known difficulty.
func IsValidDifficulty(s string) bool {
	for _, d := range Difficulties {
		if string(d) == s {
			return true
		}
	}
	return false
}

// IsValidBloomLevel reports whether s names a taxonomy level.
func IsValidBloomLevel(s string) bool {
	for _, b := range BloomLevels {
		if string(b) == s {
			return true
		}
	}
	return false
}

// Question represents a stored exam question. ID is zero until persisted.
type Question struct {
	ID         int64        `json:"id"`
	UnitID     int64        `json:"unit_id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Marks      int          `json:"marks"`
	Difficulty Difficulty   `json:"difficulty"`
	BloomLevel BloomLevel   `json:"bloom_level,omitempty"`
	Keywords   string       `json:"keywords,omitempty"`
	CreatedBy  int64        `json:"created_by"`
}

// QuestionSearch filters a subject's questions. Zero values mean "any".
type QuestionSearch struct {
	UnitID     int64
	Type       QuestionType
	Difficulty Difficulty
	Keywords   string
	MinMarks   *int
	MaxMarks   *int
}

// QuestionStats summarizes the questions stored for a subject.
type QuestionStats struct {
	Total        int                  `json:"total"`
	TotalMarks   int                  `json:"total_marks"`
	AverageMarks float64              `json:"average_marks"`
	ByType       map[QuestionType]int `json:"by_type"`
	ByDifficulty map[Difficulty]int   `json:"by_difficulty"`
	ByBloom      map[BloomLevel]int   `json:"by_bloom"`
}
