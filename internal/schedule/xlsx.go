package schedule

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet used for schedule interchange.
const SheetName = "schedule"

// WriteXLSX writes s (storage orientation) as a worksheet with one row per
// weekday and one column per 15-minute slot.
func WriteXLSX(w io.Writer, s Schedule) error {
	if err := CheckStorageShape(s.Matrix); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}

	if err := setCell(f, 1, 1, s.Description); err != nil {
		return err
	}
	for slot := 0; slot < SlotsPerDay; slot++ {
		if err := setCell(f, slot+2, 1, SlotLabel(slot)); err != nil {
			return err
		}
	}
	for day, row := range s.Matrix {
		if err := setCell(f, 1, day+2, DayLabel(day)); err != nil {
			return err
		}
		for slot, v := range row {
			if err := setCell(f, slot+2, day+2, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SheetName, cell, value)
}

// ReadXLSX reads a worksheet written by WriteXLSX. Every cell goes through
// SanitizeCell; a single invalid cell rejects the whole sheet.
func ReadXLSX(r io.Reader) (description string, m Matrix, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return "", nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < Days+1 {
		return "", nil, fmt.Errorf("%w: %d day rows, want %d", ErrShape, len(rows)-1, Days)
	}
	if len(rows[0]) > 0 {
		description = strings.TrimSpace(rows[0][0])
	}

	m = make(Matrix, Days)
	for day := 0; day < Days; day++ {
		row := rows[day+1]
		m[day] = make([]int, SlotsPerDay)
		for slot := 0; slot < SlotsPerDay; slot++ {
			var raw any
			// GetRows trims trailing empty cells.
			if slot+1 < len(row) {
				raw = row[slot+1]
			}
			v, err := SanitizeCell(raw)
			if err != nil {
				return "", nil, fmt.Errorf("%s %s: %w", DayLabel(day), SlotLabel(slot), err)
			}
			m[day][slot] = v
		}
	}
	return description, m, nil
}

// Import loads a sheet read by ReadXLSX into the editor as one edit batch.
func (e *Editor) Import(description string, stored Matrix) error {
	edited, err := e.store.Orientation().ToEditor(stored)
	if err != nil {
		return err
	}
	rows, cols, err := edited.Dims()
	if err != nil {
		return err
	}
	edits := make([]CellEdit, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			edits = append(edits, CellEdit{Row: r, Col: c, Value: edited[r][c]})
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return ErrNoSchedule
	}
	if err := e.grid.Apply(edits, SourceImport); err != nil {
		return err
	}
	if description != "" {
		e.description = description
	}
	return nil
}
