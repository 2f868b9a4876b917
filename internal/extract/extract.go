package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// MaxPDFSize caps the bytes read from the blob store for one document.
const MaxPDFSize = 32 << 20

var ErrNotPDF = errors.New("not a pdf document")

// ReadPDF reads a stored PDF fully, refusing payloads over MaxPDFSize.
func ReadPDF(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPDFSize+1))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(data) > MaxPDFSize {
		return nil, fmt.Errorf("read pdf: larger than %d bytes", MaxPDFSize)
	}
	return data, nil
}

// TextFromPDF returns the plain text of every page of a PDF, in page order.
// Scanned PDFs without a text layer yield an empty string.
func TextFromPDF(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", fmt.Errorf("extract text: %w", ErrNotPDF)
	}

	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract text: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract text: open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return buf.String(), nil
}
