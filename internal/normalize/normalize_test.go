package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Martin Fowler", "Martin Fowler"},
		{"trims", "  Sandi Metz\t", "Sandi Metz"},
		{"folds inner whitespace", "Robert   Martin", "Robert Martin"},
		{"composes accents", "Fe\u0301dor", "F\u00e9dor"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

func TestGenres(t *testing.T) {
	got := Genres([]string{" classic ", "", "crime", "classic", "   "})
	assert.Equal(t, []string{"classic", "crime", "classic"}, got)
	assert.Empty(t, Genres(nil))
}
