package processing

import (
	"strings"
	"unicode/utf8"
)

// Defaults of the document text splitter.
const (
	DefaultSeparator    = "\n"
	DefaultChunkSize    = 750
	DefaultChunkOverlap = 50
)

// Splitter breaks text on Separator and packs the pieces into chunks of at
// most ChunkSize characters, repeating up to ChunkOverlap characters of the
// previous chunk at the start of the next one.
type Splitter struct {
	Separator    string
	ChunkSize    int
	ChunkOverlap int
}

// NewSplitter returns the default splitter ("\n", 750, 50).
func NewSplitter() Splitter {
	return Splitter{Separator: DefaultSeparator, ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// ChunkText splits text with the default splitter.
func ChunkText(text string) []string {
	return NewSplitter().Split(text)
}

// Split returns the chunks of text. Empty pieces are dropped.
func (s Splitter) Split(text string) []string {
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = 0
	}

	var pieces []string
	for _, p := range strings.Split(text, s.Separator) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// pieces longer than a chunk are cut with the same overlap
		pieces = append(pieces, splitLong(p, s.ChunkSize, s.ChunkOverlap)...)
	}
	return s.merge(pieces)
}

func (s Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.Separator)
	var (
		out     []string
		current []string
		total   int
	)
	join := func() {
		if doc := strings.TrimSpace(strings.Join(current, s.Separator)); doc != "" {
			out = append(out, doc)
		}
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if len(current) > 0 && total+n+sepLen > s.ChunkSize {
			join()
			// keep a tail of the previous chunk as overlap
			for len(current) > 0 && (total > s.ChunkOverlap || total+n+sepLen > s.ChunkSize) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		join()
	}
	return out
}

func splitLong(s string, max, overlap int) []string {
	r := []rune(s)
	if len(r) <= max {
		return []string{s}
	}
	var res []string
	for i := 0; i < len(r); i += max - overlap {
		end := min(i+max, len(r))
		if chunk := strings.TrimSpace(string(r[i:end])); chunk != "" {
			res = append(res, chunk)
		}
		if end == len(r) {
			break
		}
	}
	return res
}
