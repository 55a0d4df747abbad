// Package export выгрузка журнала случаев в Excel.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"retina-bot/internal/domain/entity"
)

const historySheet = "История"

var historyHeader = []string{"Случай", "ФИО", "Пол", "Возраст", "Профессия", "Контакт", "Адрес", "Время", "Отчёт"}

var historyWidths = []float64{38, 20, 8, 10, 18, 18, 30, 20, 60}

// HistoryWorkbook собирает xlsx с журналом случаев. link строит ссылку на отчёт.
func HistoryWorkbook(entries []entity.HistoryEntry, link func(caseID string) string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	// после удаления Sheet1 индексы сдвигаются
	index, err := f.GetSheetIndex(historySheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, title := range historyHeader {
		if err := setCell(f, i+1, 1, title); err != nil {
			return nil, err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(historySheet, col, col, historyWidths[i]); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(historyHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(historySheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, e := range entries {
		row := i + 2
		when := e.RawTime
		if !e.Time.IsZero() {
			when = e.Time.Format("2006-01-02 15:04:05")
		}
		values := []string{e.CaseID, e.Name, e.Gender, e.Age, e.Occupation, e.Contact, e.Address, when, link(e.CaseID)}
		for col, v := range values {
			if v == "" {
				continue
			}
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	// заголовок остаётся на месте при прокрутке
	if err := f.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze panes: %w", err)
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
	if err := f.SetCellValue(historySheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
