package processing

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"alpha\nbeta"}, ChunkText("alpha\n\n  beta  \n"))
	assert.Empty(t, ChunkText("\n\n  \n"))
}

func TestSplitter_PacksLinesWithOverlap(t *testing.T) {
	s := Splitter{Separator: "\n", ChunkSize: 10, ChunkOverlap: 4}
	got := s.Split("aaa\nbbb\nccc\nddd")
	assert.Equal(t, []string{"aaa\nbbb", "bbb\nccc", "ccc\nddd"}, got)
}

func TestSplitter_RespectsChunkSize(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("word ", 12))
	}
	for _, c := range ChunkText(strings.Join(lines, "\n")) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
	}
}

func TestSplitter_LongLineIsCut(t *testing.T) {
	s := Splitter{Separator: "\n", ChunkSize: 10, ChunkOverlap: 2}
	got := s.Split(strings.Repeat("é", 25))
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
		assert.True(t, utf8.ValidString(c))
	}
	assert.GreaterOrEqual(t, len(got), 3)
}
