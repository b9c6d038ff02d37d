package lexicon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphemeLen(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty", input: "", want: 0},
		{name: "ascii", input: "hello", want: 5},
		{name: "accented precomposed", input: "café", want: 4},
		{name: "combining mark", input: "café", want: 4},
		{name: "emoji", input: "🙂🙂", want: 2},
		{name: "zwj family", input: "👨‍👩‍👧‍👦", want: 1},
		{name: "regional indicator flag", input: "🇩🇪", want: 1},
		{name: "skin tone modifier", input: "👍🏽", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GraphemeLen(tt.input))
		})
	}
}

func TestTruncateGraphemes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "shorter than limit", input: "hello", max: 10, want: "hello"},
		{name: "exact limit", input: "hello", max: 5, want: "hello"},
		{name: "over limit", input: "hello world", max: 5, want: "hello"},
		{name: "zero limit", input: "hello", max: 0, want: ""},
		{name: "negative limit", input: "hello", max: -1, want: ""},
		{name: "empty", input: "", max: 5, want: ""},
		{name: "emoji kept whole", input: "ab🙂cd", max: 3, want: "ab🙂"},
		{name: "zwj family kept whole", input: "👨‍👩‍👧‍👦👨‍👩‍👧‍👦👨‍👩‍👧‍👦", max: 2, want: "👨‍👩‍👧‍👦👨‍👩‍👧‍👦"},
		{name: "flag pair not split", input: "🇩🇪🇫🇷🇯🇵", max: 2, want: "🇩🇪🇫🇷"},
		{name: "combining mark stays attached", input: "ééé", max: 2, want: "éé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateGraphemes(tt.input, tt.max))
		})
	}
}

func TestTruncateGraphemesPostLimit(t *testing.T) {
	atLimit := strings.Repeat("a", 300)
	assert.Equal(t, atLimit, TruncateGraphemes(atLimit, 300))

	over := atLimit + "b"
	got := TruncateGraphemes(over, 300)
	assert.Equal(t, atLimit, got)
	assert.Equal(t, 300, GraphemeLen(got))
}

func TestTruncateGraphemesMultibyteAtLimit(t *testing.T) {
	// 300 single-cluster emoji occupy far more than 300 bytes but fit the
	// grapheme limit untouched.
	input := strings.Repeat("🙂", 300)
	assert.Equal(t, input, TruncateGraphemes(input, 300))

	got := TruncateGraphemes(input+"🙂", 300)
	assert.Equal(t, input, got)
}
