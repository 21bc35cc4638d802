package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter_RejectsBadOverlap(t *testing.T) {
	_, err := NewSplitter(10, 10)
	assert.Error(t, err)
	_, err = NewSplitter(10, -1)
	assert.Error(t, err)
	_, err = NewSplitter(0, 0)
	assert.Error(t, err)
}

func TestSplit_WindowAndOverlap(t *testing.T) {
	s, err := NewSplitter(4, 2)
	require.NoError(t, err)

	chunks := s.Split("doc-1", []Page{{Number: 1, Text: "abcdefgh"}})
	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, 1, c.Page)
	}
	assert.Equal(t, []string{"abcd", "cdef", "efgh"}, texts)
}

func TestSplit_IndexContinuesAcrossPages(t *testing.T) {
	s, err := NewSplitter(5, 0)
	require.NoError(t, err)

	chunks := s.Split("doc", []Page{
		{Number: 1, Text: "hello world"},
		{Number: 2, Text: "   "},
		{Number: 3, Text: "bye"},
	})
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[3].Page)
	assert.Equal(t, "bye", chunks[3].Text)
}

func TestSplit_MultiByteRunes(t *testing.T) {
	s, err := NewSplitter(3, 1)
	require.NoError(t, err)

	chunks := s.Split("doc", []Page{{Number: 1, Text: "天空是蓝色的"}})
	require.NotEmpty(t, chunks)
	assert.Equal(t, "天空是", chunks[0].Text)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 3)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)
	text := strings.Repeat("The sky is blue. Grass is green. ", 20)

	a := s.Split("doc", []Page{{Number: 1, Text: text}})
	b := s.Split("doc", []Page{{Number: 1, Text: text}})
	assert.Equal(t, a, b)
}
