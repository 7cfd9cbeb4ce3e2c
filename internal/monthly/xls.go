package monthly

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/extrame/xls"
)

// Cell addresses one spreadsheet cell by zero-based row and column.
type Cell struct {
	Row int
	Col int
}

// ReadCells opens an .xls workbook and returns the text of each requested cell
// on the first sheet, in order.
func ReadCells(path string, cells []Cell) ([]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c.Row > int(sheet.MaxRow) {
			return nil, fmt.Errorf("cell (%d,%d) beyond last row %d", c.Row, c.Col, sheet.MaxRow)
		}
		row := sheet.Row(c.Row)
		if row == nil || c.Col > row.LastCol() {
			return nil, fmt.Errorf("cell (%d,%d) is empty", c.Row, c.Col)
		}
		out = append(out, strings.TrimSpace(row.Col(c.Col)))
	}
	return out, nil
}

// CellValue converts spreadsheet text to a float when it is numeric.
func CellValue(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}
