package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLanguage(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "es", s.DefaultLanguage())

	s, err = New("en-US")
	require.NoError(t, err)
	assert.Equal(t, "en", s.DefaultLanguage())

	_, err = New("not a tag!")
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}

func TestNormalize(t *testing.T) {
	s, err := New("es")
	require.NoError(t, err)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "es", false},
		{"  ", "es", false},
		{"en", "en", false},
		{"es-MX", "es", false},
		{"pt-BR", "pt", false},
		{"12345678901", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := s.Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLanguage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	text := "The cat sat on the mat. It was happy!  Was it?\n\nYes it was."
	got, err := s.Split(text, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"The cat sat on the mat.",
		"It was happy!",
		"Was it?",
		"Yes it was.",
	}, got)
}

func TestSplit_Spanish(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	got, err := s.Split("¿Dónde está la biblioteca? Está cerca del parque.", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"¿Dónde está la biblioteca?", "Está cerca del parque."}, got)
}

func TestSplit_FoldsWhitespace(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	got, err := s.Split("A line that\nwraps  here. Next one.", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"A line that wraps here.", "Next one."}, got)
}

func TestSplit_Empty(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	got, err := s.Split("", "en")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Split("   \n\t ", "en")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSplit_SingleSentence(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	got, err := s.Split("Only one sentence here", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one sentence here"}, got)
}

func TestSplit_InvalidLanguage(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	_, err = s.Split("Hello. World.", "12345678901")
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}
