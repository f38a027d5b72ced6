// Package ingest reads uploaded statement files (CSV, XLSX, PDF) into raw
// rows for normalization.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/finlens/pkg/models"
)

// Input-shape errors. They are fatal to the file that raised them.
var (
	ErrUnsupportedFileType = errors.New("ingest: unsupported file type")
	ErrEmptyFile           = errors.New("ingest: file is empty")
	ErrNoSheets            = errors.New("ingest: workbook has no sheets")
	ErrEmptySheet          = errors.New("ingest: sheet is empty")
	ErrMissingColumns      = errors.New("ingest: too few required columns")
	ErrFileTooLarge        = errors.New("ingest: file exceeds upload limit")
	ErrInvalidPDF          = errors.New("ingest: not a readable PDF")
)

// InputError carries the message shown to the user alongside the
// sentinel that classifies it.
type InputError struct {
	Kind    error
	Message string
}

func (e *InputError) Error() string { return e.Message }
func (e *InputError) Unwrap() error { return e.Kind }

func inputError(kind error, format string, args ...any) error {
	return &InputError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Kind is the detected upload format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
	KindPDF  Kind = "pdf"
)

// DetectKind classifies a file by its extension, case-insensitively.
func DetectKind(name string) (Kind, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return KindCSV, nil
	case strings.HasSuffix(lower, ".xlsx"):
		return KindXLSX, nil
	case strings.HasSuffix(lower, ".pdf"):
		return KindPDF, nil
	}
	return "", inputError(ErrUnsupportedFileType, "Unsupported file type: %s. Please use .csv, .xlsx, or .pdf.", name)
}

// Upload is one file's name and contents.
type Upload struct {
	Name string
	Data []byte
}

// PDFExtractor turns a statement PDF into raw period rows. Extraction is
// delegated to an AI model; see agent.Extractor.
type PDFExtractor interface {
	ExtractRecords(ctx context.Context, doc Document) ([]models.RawRow, error)
}

// Parser converts uploads into raw rows.
type Parser struct {
	pdf      PDFExtractor
	maxBytes int64
}

// Option configures a Parser.
type Option func(*Parser)

// WithPDFExtractor enables PDF uploads.
func WithPDFExtractor(e PDFExtractor) Option {
	return func(p *Parser) { p.pdf = e }
}

// WithMaxBytes rejects uploads larger than n bytes. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(p *Parser) { p.maxBytes = n }
}

// NewParser creates a parser. Without a PDF extractor, PDF uploads fail.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse dispatches on the upload's extension.
func (p *Parser) Parse(ctx context.Context, up Upload) ([]models.RawRow, error) {
	kind, err := DetectKind(up.Name)
	if err != nil {
		return nil, err
	}
	if p.maxBytes > 0 && int64(len(up.Data)) > p.maxBytes {
		return nil, inputError(ErrFileTooLarge, "File %s is larger than the %d MB upload limit.", up.Name, p.maxBytes>>20)
	}

	log.Debug().Str("component", "ingest").Str("file", up.Name).Str("kind", string(kind)).Int("bytes", len(up.Data)).Msg("parsing upload")

	switch kind {
	case KindCSV:
		return ParseCSV(up.Data)
	case KindXLSX:
		return ParseXLSX(up.Data)
	default:
		if p.pdf == nil {
			return nil, eris.Wrapf(ErrUnsupportedFileType, "PDF upload %s needs an AI provider", up.Name)
		}
		doc, err := InspectPDF(up.Name, up.Data)
		if err != nil {
			return nil, err
		}
		return p.pdf.ExtractRecords(ctx, doc)
	}
}

// ReadFiles loads every path concurrently and returns the uploads in
// input order. The first failure cancels the rest.
func ReadFiles(ctx context.Context, paths []string) ([]Upload, error) {
	uploads := make([]Upload, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if _, err := DetectKind(path); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "ingest: read %s", path)
			}
			uploads[i] = Upload{Name: filepath.Base(path), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uploads, nil
}
