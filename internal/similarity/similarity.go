// Package similarity detects near-duplicate question texts using a
// normalized Levenshtein score.
package similarity

import (
	"strings"

	"github.com/qngenius/qngenius/internal/model"
)

// DefaultThreshold is the similarity above which two texts are duplicates.
const DefaultThreshold = 0.8

// Distance returns the Levenshtein edit distance between a and b, counting
// single-rune insertions, deletions and substitutions at cost 1.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rolling rows of the classic DP table.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j-1]+cost, prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// normalize case-folds and trims a question text for comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Similarity returns 1 - distance/maxLen over the normalized texts.
// Two empty texts are identical.
func Similarity(a, b string) float64 {
	return score(normalize(a), normalize(b))
}

func score(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Distance(a, b))/float64(maxLen)
}

// Matcher decides whether a candidate text duplicates an existing question.
type Matcher struct {
	Threshold float64
}

// New returns a Matcher using the given threshold, or DefaultThreshold if
// threshold is not in (0, 1].
func New(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// IsDuplicate compares candidate against every existing question. An exact
// match after lower-casing and trimming returns immediately; otherwise any
// similarity strictly above the threshold counts.
func (m *Matcher) IsDuplicate(candidate string, existing []model.Question) bool {
	_, ok := m.FirstMatch(candidate, existing)
	return ok
}

// FirstMatch is IsDuplicate that also returns the matching question.
func (m *Matcher) FirstMatch(candidate string, existing []model.Question) (model.Question, bool) {
	c := normalize(candidate)
	for _, q := range existing {
		e := normalize(q.Text)
		if c == e {
			return q, true
		}
		if score(c, e) > m.Threshold {
			return q, true
		}
	}
	return model.Question{}, false
}

// IsDuplicate runs the default matcher.
func IsDuplicate(candidate string, existing []model.Question) bool {
	return New(DefaultThreshold).IsDuplicate(candidate, existing)
}
