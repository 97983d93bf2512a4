package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/processing"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("no text extracted")

// ChunkStore persists embedded chunks into a named collection.
type ChunkStore interface {
	InsertChunks(ctx context.Context, collection string, chunks []processing.Chunk) error
}

// Indexer extracts, chunks, embeds and stores documents.
type Indexer struct {
	Embedder processing.Embedder
	Store    ChunkStore
	Splitter processing.Splitter
	Log      *slog.Logger
}

// NewIndexer returns an Indexer using the default splitter.
func NewIndexer(e processing.Embedder, store ChunkStore, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{Embedder: e, Store: store, Splitter: processing.NewSplitter(), Log: log}
}

// IndexFile indexes the file at path and returns the number of chunks stored.
func (ix *Indexer) IndexFile(ctx context.Context, collection, path, source string) (int, error) {
	text, err := ExtractText(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", path, err)
	}
	return ix.IndexText(ctx, collection, text, processing.NewMetadata(path, source))
}

// IndexReader indexes an uploaded document.
func (ix *Indexer) IndexReader(ctx context.Context, collection string, r io.Reader, filename string) (int, error) {
	text, err := ExtractReader(ctx, r, filename)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", filename, err)
	}
	return ix.IndexText(ctx, collection, text, processing.NewMetadata(filename, processing.SourceUpload))
}

// IndexText chunks and embeds text already extracted from a document.
func (ix *Indexer) IndexText(ctx context.Context, collection, text string, meta processing.Metadata) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoText
	}
	pieces := ix.Splitter.Split(text)
	if len(pieces) == 0 {
		return 0, ErrNoText
	}
	embs, err := ix.Embedder.EmbedChunks(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", meta.Path, err)
	}

	chunks := make([]processing.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = processing.Chunk{Content: pieces[i], Embedding: embs[i], Metadata: meta}
	}
	if err := ix.Store.InsertChunks(ctx, collection, chunks); err != nil {
		return 0, fmt.Errorf("storing %s: %w", meta.Path, err)
	}
	ix.Log.Info("indexed document", "collection", collection, "file", meta.Path, "chunks", len(chunks))
	return len(chunks), nil
}

// IndexFolder indexes every supported file under root. Files that fail are
// logged and skipped.
func (ix *Indexer) IndexFolder(ctx context.Context, collection, root string) (int, error) {
	files, err := LoadLocalFiles(root)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := ix.IndexFile(ctx, collection, f, processing.SourceLocal)
		if err != nil {
			ix.Log.Warn("skipping file", "file", f, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// DriveSource lists and downloads the files of a remote folder. GoogleDrive
// implements it.
type DriveSource interface {
	ListFiles(ctx context.Context, folderID string) ([]DriveFile, error)
	Download(ctx context.Context, f DriveFile, dir string) (string, error)
}

// IndexDrive downloads every supported file in folderID to a temporary
// directory and indexes it. Files that fail are logged and skipped.
func (ix *Indexer) IndexDrive(ctx context.Context, collection string, src DriveSource, folderID string) (int, error) {
	files, err := src.ListFiles(ctx, folderID)
	if err != nil {
		return 0, err
	}
	dir, err := os.MkdirTemp("", "drive-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		path, err := src.Download(ctx, f, dir)
		if err != nil {
			ix.Log.Warn("skipping drive file", "file", f.Name, "error", err)
			continue
		}
		n, err := ix.IndexFile(ctx, collection, path, processing.SourceGDrive)
		if err != nil {
			ix.Log.Warn("skipping drive file", "file", f.Name, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}
