package imagerender

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Renderer rasterizes PDF pages with MuPDF.
type Renderer struct{}

// New creates a renderer.
func New() *Renderer { return &Renderer{} }

// Version reports the linked MuPDF version.
func Version() string { return fitz.FzVersion }

// RenderPages renders pages first..last (1-based, inclusive) at dpi and
// returns them in page order.
func (r *Renderer) RenderPages(ctx context.Context, pdfPath string, dpi, first, last int) ([]image.Image, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range %d-%d", first, last)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); last > n {
		return nil, fmt.Errorf("page range %d-%d exceeds document length %d", first, last, n)
	}

	pages := make([]image.Image, 0, last-first+1)
	for p := first; p <= last; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// go-fitz uses 0-based indexing
		img, err := doc.ImageDPI(p-1, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", p, err)
		}
		b := img.Bounds()
		log.Debug().
			Int("page", p).
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Int("dpi", dpi).
			Msg("rendered page")
		pages = append(pages, img)
	}
	return pages, nil
}
