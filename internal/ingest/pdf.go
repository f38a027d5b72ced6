package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// maxPDFTextChars bounds extracted text handed to text-only models.
const maxPDFTextChars = 50000

// Document is an uploaded statement PDF ready for extraction.
type Document struct {
	Name      string
	Data      []byte
	PageCount int
	Encrypted bool
}

// InspectPDF checks that data is a readable PDF and records its page count.
func InspectPDF(name string, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, inputError(ErrEmptyFile, "PDF file %s is empty.", name)
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return Document{}, &InputError{
			Kind:    ErrInvalidPDF,
			Message: fmt.Sprintf("%s is not a readable PDF: %v", name, err),
		}
	}
	doc := Document{
		Name:      name,
		Data:      data,
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}
	log.Debug().Str("component", "ingest").Str("file", name).Int("pages", doc.PageCount).Bool("encrypted", doc.Encrypted).Msg("inspected PDF")
	return doc, nil
}

// Text extracts the plain text of every page, for models that cannot
// read PDF documents directly. Output is truncated to a bounded size.
func (d Document) Text() (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("ingest: panic during PDF text extraction: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(d.Data), int64(len(d.Data)))
	if err != nil {
		return "", fmt.Errorf("ingest: open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", i)
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > maxPDFTextChars {
			break
		}
	}

	out := sb.String()
	if len(out) > maxPDFTextChars {
		out = out[:maxPDFTextChars]
	}
	return out, nil
}
