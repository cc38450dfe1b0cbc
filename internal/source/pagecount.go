package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// ErrNotPDF is returned when a file's magic bytes are not a PDF.
var ErrNotPDF = errors.New("not a pdf")

// ValidatePDF detects the actual file type using magic bytes, not filename.
func ValidatePDF(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	log.Debug().Str("mime", mtype.String()).Str("file", path).Msg("detected file type")
	if !mtype.Is("application/pdf") {
		return fmt.Errorf("%s is %s: %w", path, mtype.String(), ErrNotPDF)
	}
	return nil
}

// PageCounter counts pages with pdfcpu after checking the file is a PDF.
type PageCounter struct{}

func NewPageCounter() *PageCounter { return &PageCounter{} }

// CountPages returns the number of pages in the PDF at path.
func (PageCounter) CountPages(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidatePDF(path); err != nil {
		return 0, err
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}
