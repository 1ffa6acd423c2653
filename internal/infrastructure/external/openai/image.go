package openai

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedContent is returned for receipts that are neither images nor PDFs
var ErrUnsupportedContent = errors.New("unsupported receipt content type")

// prepareImage normalizes a receipt into something the vision endpoint accepts.
// JPEG and PNG pass through; PDFs are rendered from their first page, HEIC and GIF are re-encoded as PNG.
func prepareImage(content []byte, contentType string) ([]byte, string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case mimeType == "application/pdf":
		out, err := renderPDF(content)
		return out, "image/png", err
	case isHEIC(content, mimeType):
		img, err := heic.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, "", fmt.Errorf("decoding HEIC image: %w", err)
		}
		out, err := encodePNG(img)
		return out, "image/png", err
	case mimeType == "image/jpeg" || mimeType == "image/png":
		return content, mimeType, nil
	case strings.HasPrefix(mimeType, "image/"):
		img, _, err := image.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mimeType)
		}
		out, err := encodePNG(img)
		return out, "image/png", err
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
}

// renderPDF renders the first page; receipts are almost always single page
func renderPDF(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, errors.New("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC checks the MIME type and the ftyp brand at offset 4
func isHEIC(data []byte, mimeType string) bool {
	if mimeType == "image/heic" || mimeType == "image/heif" {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
