package loader

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"commodity-prices/models"
)

// ReadXLSX loads the first sheet of a workbook. The first row is the header;
// cells are read as displayed, so dates keep their spreadsheet formatting.
func ReadXLSX(path string) (*models.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx: %q: no sheets found", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &models.RawTable{}, nil
	}
	return buildTable(rows[0], rows[1:]), nil
}
