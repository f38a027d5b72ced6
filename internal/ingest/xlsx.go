package ingest

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// ParseXLSX reads the first sheet of a workbook. The first row is the
// header; blank cells are left out of the row, as if absent.
func ParseXLSX(data []byte) ([]models.RawRow, error) {
	if len(data) == 0 {
		return nil, inputError(ErrEmptyFile, "XLSX file is empty.")
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, inputError(ErrNoSheets, "XLSX file contains no sheets.")
	}

	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read sheet %q", sheets[0])
	}

	var header []string
	var rows []models.RawRow
	for _, cells := range grid {
		if header == nil {
			if isBlankRow(cells) {
				continue
			}
			header = make([]string, len(cells))
			for i, c := range cells {
				header[i] = strings.TrimSpace(c)
			}
			continue
		}
		if isBlankRow(cells) {
			continue
		}
		row := make(models.RawRow, len(header))
		for i, h := range header {
			if h == "" || i >= len(cells) || strings.TrimSpace(cells[i]) == "" {
				continue
			}
			row[h] = cells[i]
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, inputError(ErrEmptySheet, "XLSX file is empty.")
	}
	if statement.CountRequired(header) < statement.MinRecognizedColumns {
		return nil, inputError(ErrMissingColumns, "XLSX file is missing most required columns. Please use the template.")
	}
	return rows, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
