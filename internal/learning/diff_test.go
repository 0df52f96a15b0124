package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/derek809/mailtriage/internal/storage"
)

// TestEditPercentage covers token-level distance normalization.
func TestEditPercentage(t *testing.T) {
	tests := []struct {
		name  string
		draft string
		final string
		want  float64
	}{
		{"identical", "thanks for the note", "thanks for the note", 0},
		{"both empty", "", "", 0},
		{"whitespace only differs", "a  b\nc", "a b c", 0},
		{"one substitution", "a b c d", "a b x d", 25},
		{"final empty", "hello world", "", 100},
		{"draft empty", "", "hello world", 100},
		{"appended words", "a b c", "a b c d e f", 50},
		{"rounded to two decimals", "a b c", "a b x", 33.33},
		{"case sensitive", "Thanks", "thanks", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EditPercentage(tt.draft, tt.final))
		})
	}
}

// TestEditPercentage_Bounds checks the result stays within [0,100].
func TestEditPercentage_Bounds(t *testing.T) {
	pairs := [][2]string{
		{"a", "b c d e f g"},
		{"a b c d e f g", "z"},
		{"x y", "y x"},
	}
	for _, p := range pairs {
		pct := EditPercentage(p[0], p[1])
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		pct  float64
		want storage.Outcome
	}{
		{0, storage.OutcomeSuccess},
		{9.99, storage.OutcomeSuccess},
		{10, storage.OutcomeGood},
		{29.99, storage.OutcomeGood},
		{30, storage.OutcomeNeedsWork},
		{49.99, storage.OutcomeNeedsWork},
		{50, storage.OutcomeFailure},
		{100, storage.OutcomeFailure},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.pct), "pct=%v", tt.pct)
	}
}

func TestEvaluate(t *testing.T) {
	pct, outcome := Evaluate("Hi Jane, W9 attached.", "")
	assert.Equal(t, 100.0, pct)
	assert.Equal(t, storage.OutcomeMajorFailure, outcome)

	pct, outcome = Evaluate("Hi Jane, W9 attached.", "   \n")
	assert.Equal(t, 100.0, pct)
	assert.Equal(t, storage.OutcomeMajorFailure, outcome)

	pct, outcome = Evaluate("", "")
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, storage.OutcomeSuccess, outcome)

	pct, outcome = Evaluate("a b c d e f g h i j", "a b c d e f g h i k")
	assert.Equal(t, 10.0, pct)
	assert.Equal(t, storage.OutcomeGood, outcome)
}
