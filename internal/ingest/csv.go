package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// ParseCSV reads a statement CSV: the first line is the header, every
// further line one period. Cells are trimmed strings; cells missing from
// a short line are nil.
func ParseCSV(data []byte) ([]models.RawRow, error) {
	text := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))
	if text == "" {
		return nil, inputError(ErrMissingColumns, "CSV file is missing most required columns. Please use the template.")
	}

	r := csv.NewReader(bytes.NewReader([]byte(text)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if statement.CountRequired(header) < statement.MinRecognizedColumns {
		return nil, inputError(ErrMissingColumns, "CSV file is missing most required columns. Please use the template.")
	}

	var rows []models.RawRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read CSV row")
		}
		row := make(models.RawRow, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
