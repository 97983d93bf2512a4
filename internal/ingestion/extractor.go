// Package ingestion turns uploaded and discovered files into text and tables.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for files with an extension we cannot read.
var ErrUnsupportedType = errors.New("unsupported file type")

// ExtractText detects file type and returns text via direct extraction or OCR.
func ExtractText(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ".pdf":
		text, err := ExtractTextFromPDF(ctx, path)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNoText) {
			return "", err
		}
		// scanned document
		return ExtractTextWithOCR(ctx, path)
	case ".png", ".jpg", ".jpeg":
		return ExtractTextWithOCR(ctx, path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}

// ExtractReader spools r to a temporary file named like filename and extracts it.
func ExtractReader(ctx context.Context, r io.Reader, filename string) (string, error) {
	if !Supported(filename) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
	dir, err := os.MkdirTemp("", "datachat-upload")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ExtractText(ctx, path)
}
