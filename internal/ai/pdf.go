package ai

import (
	"bytes"
	"fmt"
	"image/png"
	"os"

	"github.com/gen2brain/go-fitz"
)

// renderPDFFirstPage rasterizes the first page of a PDF to PNG bytes.
// Invoices are overwhelmingly single-page; later pages are ignored to
// bound token cost.
func renderPDFFirstPage(pdfData []byte) ([]byte, error) {
	// go-fitz wants a file on disk.
	tmp, err := os.CreateTemp("", "invoice_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdfData); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	tmp.Close()

	doc, err := fitz.New(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("render pdf page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page png: %w", err)
	}
	return buf.Bytes(), nil
}
