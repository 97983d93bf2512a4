package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Divas-Gupta30/datachat/internal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadLocalFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.MD"), "b")
	writeFile(t, filepath.Join(root, "c.docx"), "c")
	writeFile(t, filepath.Join(root, ".git", "d.txt"), "d")

	files, err := LoadLocalFiles(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "sub", "b.MD")}, files)
}

func TestExtractText(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.md")
	writeFile(t, path, "# Notes\nhello")

	text, err := ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\nhello", text)

	_, err = ExtractText(context.Background(), filepath.Join(root, "x.docx"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	text, err = ExtractReader(context.Background(), strings.NewReader("uploaded"), "up.txt")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", text)
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedChunks(_ context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	for i := range chunks {
		out[i] = make([]float32, processing.EmbeddingDim)
	}
	return out, nil
}

func (fakeEmbedder) QueryEmbedding(context.Context, string) ([]float32, error) {
	return make([]float32, processing.EmbeddingDim), nil
}

type memStore struct {
	chunks map[string][]processing.Chunk
}

func (m *memStore) InsertChunks(_ context.Context, collection string, chunks []processing.Chunk) error {
	if m.chunks == nil {
		m.chunks = map[string][]processing.Chunk{}
	}
	m.chunks[collection] = append(m.chunks[collection], chunks...)
	return nil
}

func TestIndexer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), strings.Repeat("line of text\n", 200))
	writeFile(t, filepath.Join(root, "empty.txt"), "   ")

	store := &memStore{}
	ix := NewIndexer(fakeEmbedder{}, store, nil)

	n, err := ix.IndexFolder(context.Background(), "docs", root)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	require.Len(t, store.chunks["docs"], n)
	assert.Equal(t, processing.SourceLocal, store.chunks["docs"][0].Metadata.Source)

	_, err = ix.IndexReader(context.Background(), "up", strings.NewReader(" \n "), "blank.txt")
	assert.ErrorIs(t, err, ErrNoText)
}

type fakeDrive struct{ files map[string]string }

func (d fakeDrive) ListFiles(context.Context, string) ([]DriveFile, error) {
	var out []DriveFile
	for name := range d.files {
		out = append(out, DriveFile{ID: "id-" + name, Name: name})
	}
	return out, nil
}

func (d fakeDrive) Download(_ context.Context, f DriveFile, dir string) (string, error) {
	if f.Name == "broken.txt" {
		return "", errors.New("403 forbidden")
	}
	path := filepath.Join(dir, f.ID+"_"+f.Name)
	return path, os.WriteFile(path, []byte(d.files[f.Name]), 0o644)
}

func TestIndexDrive(t *testing.T) {
	store := &memStore{}
	ix := NewIndexer(fakeEmbedder{}, store, nil)
	src := fakeDrive{files: map[string]string{"policy.txt": "Remote work is allowed.", "broken.txt": "x"}}

	n, err := ix.IndexDrive(context.Background(), "hr", src, "folder")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.chunks["hr"], 1)
	assert.Equal(t, processing.SourceGDrive, store.chunks["hr"][0].Metadata.Source)
	assert.Equal(t, "Remote work is allowed.", store.chunks["hr"][0].Content)
}
