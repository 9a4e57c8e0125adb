package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

const maxTextBytes = 1 << 20

type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

type TextExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f TextExtractorFunc) ExtractText(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// PDFExtractor reads the text layer of a PDF. Scanned documents yield little or no text.
type PDFExtractor struct{}

func (PDFExtractor) ExtractText(_ context.Context, data []byte) (string, error) {
	return ExtractPDFText(data)
}

// ExtractPDFText returns at most 1 MiB of plain text. Panics inside the pdf
// library are reported as errors.
func ExtractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic during PDF read: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF reader: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract plain text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(plain, maxTextBytes))
	if err != nil {
		return "", fmt.Errorf("read plain text: %w", err)
	}
	return string(b), nil
}
