package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	actionsSheet = "Action Items"
)

type XLSX struct{}

func (XLSX) Format() string { return "xlsx" }

// Export writes a workbook with a key/value Summary sheet and a numbered
// Action Items sheet.
func (XLSX) Export(path string, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	rows := [][2]any{
		{"Job ID", doc.JobID},
		{"File", doc.OriginalName},
		{"Duration (sec)", doc.DurationSec},
		{"Duration", formatDuration(doc.DurationSec)},
		{"Created", doc.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Summary", doc.Summary},
		{"Transcript", doc.Transcript},
	}
	for i, r := range rows {
		row := i + 1
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), r[1]); err != nil {
			return err
		}
	}
	last := fmt.Sprintf("%d", len(rows))
	if err := f.SetCellStyle(summarySheet, "A1", "A"+last, bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "B1", "B"+last, wrap); err != nil {
		return err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 100)

	if _, err := f.NewSheet(actionsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	_ = f.SetCellValue(actionsSheet, "A1", "#")
	_ = f.SetCellValue(actionsSheet, "B1", "Action")
	_ = f.SetCellStyle(actionsSheet, "A1", "B1", bold)
	for i, item := range doc.ActionItems {
		row := i + 2
		if err := f.SetCellValue(actionsSheet, fmt.Sprintf("A%d", row), i+1); err != nil {
			return err
		}
		if err := f.SetCellValue(actionsSheet, fmt.Sprintf("B%d", row), item); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(actionsSheet, "B", "B", 80)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
