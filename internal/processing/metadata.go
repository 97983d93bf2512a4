package processing

import (
	"path/filepath"
	"strings"
	"time"
)

// Document sources.
const (
	SourceLocal  = "local"
	SourceGDrive = "gdrive"
	SourceUpload = "upload"
)

type Metadata struct {
	Path       string
	Source     string // "local", "gdrive" or "upload"
	ImportedAt time.Time
	Title      string
}

// NewMetadata describes a file imported now from source.
func NewMetadata(path, source string) Metadata {
	base := filepath.Base(path)
	return Metadata{
		Path:       path,
		Source:     source,
		ImportedAt: time.Now().UTC(),
		Title:      strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

// Map is the JSON form stored with each chunk and returned with search hits.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"source":      filepath.Base(m.Path),
		"origin":      m.Source,
		"title":       m.Title,
		"imported_at": m.ImportedAt.Format(time.RFC3339),
	}
}

// Chunk is one embedded piece of a document.
type Chunk struct {
	Content   string
	Embedding []float32
	Metadata  Metadata
}
