package similarity

import (
	"math"
	"testing"

	"github.com/qngenius/qngenius/internal/model"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
		{"héllo", "hello", 1},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDistanceTriangleInequality(t *testing.T) {
	words := []string{"", "a", "abc", "abd", "define osmosis", "define osmosis.", "explain photosynthesis"}
	for _, a := range words {
		if d := Distance(a, a); d != 0 {
			t.Errorf("Distance(%q, %q) = %d, want 0", a, a, d)
		}
		for _, b := range words {
			for _, c := range words {
				if Distance(a, c) > Distance(a, b)+Distance(b, c) {
					t.Errorf("triangle inequality broken for %q, %q, %q", a, b, c)
				}
			}
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"whitespace only", "   ", "", 1.0},
		{"case and space insensitive", "  What is Go?", "what is go?  ", 1.0},
		{"one edit in ten", "abcdefghij", "abcdefghiX", 0.9},
		{"disjoint", "abc", "xyz", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if back := Similarity(tt.b, tt.a); back != got {
				t.Errorf("Similarity not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func qs(texts ...string) []model.Question {
	out := make([]model.Question, len(texts))
	for i, s := range texts {
		out[i] = model.Question{ID: int64(i + 1), Text: s}
	}
	return out
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  []model.Question
		want      bool
	}{
		{"empty corpus", "Explain the water cycle", nil, false},
		{"exact", "Explain the water cycle", qs("Explain the water cycle"), true},
		{"case and whitespace", "  EXPLAIN the water cycle ", qs("explain the water cycle"), true},
		{"near duplicate", "Explain the water cycle.", qs("Explain the water cycle"), true},
		{"different question", "Define photosynthesis", qs("Explain the water cycle"), false},
		{"matches later entry", "Define osmosis", qs("Explain the water cycle", "Define osmosis"), true},
		// "abcdefghij" vs "abcdefgXYZ": 3 edits over 10 runes = 0.7.
		{"below threshold", "abcdefghij", qs("abcdefgXYZ"), false},
		// 2 edits over 10 runes = exactly 0.8, which is not above the threshold.
		{"at threshold", "abcdefghij", qs("abcdefghXY"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicate(tt.candidate, tt.existing); got != tt.want {
				t.Errorf("IsDuplicate(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestFirstMatch(t *testing.T) {
	m := New(0)
	if m.Threshold != DefaultThreshold {
		t.Fatalf("New(0).Threshold = %v, want default", m.Threshold)
	}
	q, ok := m.FirstMatch("define osmosis", qs("Explain the water cycle", "Define Osmosis"))
	if !ok {
		t.Fatal("expected a match")
	}
	if q.ID != 2 {
		t.Errorf("matched question %d, want 2", q.ID)
	}
}
