package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders every sheet as tab-separated rows, streaming rows so large sheets
// are not loaded at once. Blank rows are skipped. Workbooks with several sheets get a
// "# <sheet>" heading per sheet.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var out strings.Builder
	for _, sheet := range sheets {
		if len(sheets) > 1 {
			fmt.Fprintf(&out, "# %s\n", sheet)
		}
		if err := writeSheet(&out, f, sheet); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func writeSheet(out *strings.Builder, f *excelize.File, sheet string) error {
	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read row in sheet %q: %w", sheet, err)
		}
		for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) == 0 {
			continue
		}
		out.WriteString(strings.Join(cells, "\t"))
		out.WriteByte('\n')
	}
	return rows.Error()
}
