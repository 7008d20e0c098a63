package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each non-empty sheet as a "Sheet: <name>" line followed by its rows,
// cells separated by tabs. Blank rows and trailing empty cells are dropped.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: open workbook: %v", ErrMalformedDocument, err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: rows of sheet %q: %v", ErrMalformedDocument, sheet, err)
		}
		var lines []string
		for _, row := range rows {
			end := len(row)
			for end > 0 && strings.TrimSpace(row[end-1]) == "" {
				end--
			}
			if end == 0 {
				continue
			}
			lines = append(lines, strings.Join(row[:end], "\t"))
		}
		if len(lines) == 0 {
			continue
		}
		sheets = append(sheets, "Sheet: "+sheet+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sheets, "\n\n"), nil
}
