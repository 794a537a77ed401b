package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	apperrors "retail-analytics/internal/errors"
)

var zipMagic = []byte("PK\x03\x04")

// table is a decoded header row plus data rows, cells as raw text.
type table struct {
	header []string
	rows   [][]string
}

func decode(r io.Reader, format Format, sheet string) (*table, string, error) {
	br := bufio.NewReader(r)
	if format == FormatAuto {
		format = FormatCSV
		if magic, err := br.Peek(len(zipMagic)); err == nil && bytes.Equal(magic, zipMagic) {
			format = FormatXLSX
		}
	}

	var (
		t   *table
		err error
	)
	switch format {
	case FormatXLSX:
		t, err = decodeXLSX(br, sheet)
	default:
		t, err = decodeCSV(br)
	}
	return t, string(format), err
}

func decodeCSV(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.SchemaMismatch("source is empty, expected a header row")
	}
	if err != nil {
		return nil, apperrors.SchemaMismatchWrap(err, "read header")
	}

	t := &table{header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.SchemaMismatchWrap(err, "read record %d", len(t.rows)+2)
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

func decodeXLSX(r io.Reader, sheet string) (*table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.SchemaMismatchWrap(err, "open workbook")
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.SchemaMismatch("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	// Raw values keep dates as serial numbers instead of display strings.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.SchemaMismatchWrap(err, "read sheet %q", sheet)
	}
	if len(rows) == 0 {
		return nil, apperrors.SchemaMismatch("sheet %q is empty, expected a header row", sheet)
	}

	t := &table{header: rows[0]}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func describeRow(line int, column string) string {
	return fmt.Sprintf("row %d column %q", line, column)
}
