// Package export renders site data as downloadable workbooks.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"medgas-backend/internal/store"
)

// RegisterSheet is the sheet name of the equipment register.
const RegisterSheet = "Equipment"

// RegisterHeader lists the register columns in order.
var RegisterHeader = []string{
	"Node ID",
	"Type",
	"Name",
	"Gas",
	"Building",
	"Floor",
	"Zone",
	"Layouts",
}

var registerWidths = []float64{38, 10, 32, 16, 24, 16, 20, 40}

// Register writes one row per node into an xlsx workbook and returns its bytes.
func Register(rows []store.RegisterRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(RegisterSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(RegisterHeader))
	for i, h := range RegisterHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(RegisterSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.ColumnNumberToName(len(RegisterHeader))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(RegisterSheet, "A1", last+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range registerWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(RegisterSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, r := range rows {
		values := []string{
			r.NodeID,
			string(r.NodeType),
			r.Name,
			string(r.GasType),
			r.Building,
			r.Floor,
			r.Zone,
			strings.Join(r.Layouts, ", "),
		}
		for col, v := range values {
			if v == "" {
				continue
			}
			if err := setCell(f, col+1, i+2, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SetPanes(RegisterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(RegisterSheet, cell, value)
}
