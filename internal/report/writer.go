// Package report renders tabular datasets into styled spreadsheet files.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ErrNoRows is returned when a report is requested for an empty dataset.
var ErrNoRows = errors.New("no rows to export")

// DefaultSheet is the sheet name used when none is given.
const DefaultSheet = "Report"

// columnPadding is added to the longest value of each column.
const columnPadding = 2

// Field is one named cell of a row.
type Field struct {
	Key   string
	Value any
}

// Row is an ordered list of fields. The key order of the first row defines the columns.
type Row []Field

// Get returns the value stored under key.
func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field keys in order.
func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Build writes rows into a single-sheet workbook and returns the xlsx bytes.
func Build(sheetName string, rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if sheetName == "" {
		sheetName = DefaultSheet
	}

	headers := rows[0].Keys()
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, row := range rows {
		for col, key := range headers {
			value, ok := row.Get(key)
			if !ok || value == nil {
				continue
			}
			value = normalize(value)
			if n := utf8.RuneCountInString(fmt.Sprint(value)); n > widths[col] {
				widths[col] = n
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, float64(w+columnPadding)); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize turns a cell value into something excelize writes as text or a number.
// Nil pointers become empty cells; other pointers are dereferenced.
func normalize(value any) any {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		if _, ok := value.(fmt.Stringer); !ok {
			return normalize(rv.Elem().Interface())
		}
	}
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02 15:04")
	case fmt.Stringer:
		return v.String()
	}
	return value
}
