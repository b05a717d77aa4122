package text_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/lunabot/internal/text"
)

func TestStripMarkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no marker", input: "просто текст", expected: "просто текст"},
		{name: "self-closing", input: `<img src="abc-123" fuse="true"/>`, expected: ""},
		{name: "not self-closing", input: `<img src="abc" fuse="true">`, expected: ""},
		{name: "space before slash", input: `<img src="abc" fuse="true" />`, expected: ""},
		{
			name:     "surrounding whitespace preserved",
			input:    "  Вот кот: <img src=\"f00\" fuse=\"true\"/>\n готово ",
			expected: "  Вот кот: \n готово ",
		},
		{
			name:     "multiple markers",
			input:    `a<img src="1" fuse="true"/>b<img src="2" fuse="true"/>c`,
			expected: "abc",
		},
		{
			name:     "other img tags untouched",
			input:    `<img src="x.png"/> and <img src="y" fuse="false"/>`,
			expected: `<img src="x.png"/> and <img src="y" fuse="false"/>`,
		},
		{name: "dollar signs are literal", input: `$1 <img src="z" fuse="true"/> $2`, expected: "$1  $2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := text.StripMarkers(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.False(t, text.HasMarker(result))
		})
	}
}

func TestStripMarkers_RemovesOnlyMarkers(t *testing.T) {
	t.Parallel()

	parts := []string{"один ", "\tдва\n", "", "три"}
	marker := `<img src="00000000-0000-0000-0000-000000000000" fuse="true"/>`
	assert.Equal(t, strings.Join(parts, ""), text.StripMarkers(strings.Join(parts, marker)))
}

func TestFindMarker(t *testing.T) {
	t.Parallel()

	id, ok := text.FindMarker(`Лови! <img src="first" fuse="true"/> и <img src="second" fuse="true"/>`)
	assert.True(t, ok)
	assert.Equal(t, "first", id)

	_, ok = text.FindMarker("нет картинки")
	assert.False(t, ok)
}
