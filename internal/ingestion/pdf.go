package ingestion

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// maxPDFText bounds the text kept from a single PDF. Pages past the limit
// are not read.
const maxPDFText = 8 << 20

// ExtractTextFromPDF returns the text layer of the PDF at path, falling back
// to the pdftotext CLI when the parser finds none. It returns ErrNoText when
// neither yields any text, which means the document needs OCR.
func ExtractTextFromPDF(ctx context.Context, path string) (string, error) {
	text, err := readTextLayer(ctx, path)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if text == "" {
		if out, cliErr := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output(); cliErr == nil {
			text = truncateText(strings.TrimSpace(string(out)))
		}
	}
	if text == "" {
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoText, err)
		}
		return "", ErrNoText
	}
	return text, nil
}

func readTextLayer(ctx context.Context, path string) (text string, err error) {
	// pdf panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage() && b.Len() < maxPDFText; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(s)
	}
	return truncateText(strings.TrimSpace(b.String())), nil
}

func truncateText(s string) string {
	if len(s) <= maxPDFText {
		return s
	}
	return strings.ToValidUTF8(s[:maxPDFText], "")
}
