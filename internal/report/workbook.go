package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	SheetMonthly     = "Monthly"
	SheetTopProducts = "TopProducts"

	moneyFormat = 4 // #,##0.00
)

// NewWorkbook lays out the monthly series and top products on their own
// sheets, each with a chart beside the data. Empty series get no chart.
func NewWorkbook(s *Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetMonthly); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetTopProducts); err != nil {
		f.Close()
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := writeMonthly(f, s, style); err != nil {
		f.Close()
		return nil, fmt.Errorf("monthly sheet: %w", err)
	}
	if err := writeTopProducts(f, s, style); err != nil {
		f.Close()
		return nil, fmt.Errorf("top products sheet: %w", err)
	}
	return f, nil
}

func writeMonthly(f *excelize.File, s *Summary, style int) error {
	if err := f.SetSheetRow(SheetMonthly, "A1", &[]any{"Month", "Revenue"}); err != nil {
		return err
	}
	for i, m := range s.Monthly {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetMonthly, cell, &[]any{m.Label, m.Revenue.InexactFloat64()}); err != nil {
			return err
		}
	}
	if len(s.Monthly) == 0 {
		return nil
	}

	last := len(s.Monthly) + 1
	if err := f.SetCellStyle(SheetMonthly, "B2", fmt.Sprintf("B%d", last), style); err != nil {
		return err
	}
	return f.AddChart(SheetMonthly, "D2", &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", SheetMonthly),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetMonthly, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", SheetMonthly, last),
		}},
		Title:     []excelize.RichTextRun{{Text: "Monthly Revenue Trend"}},
		Legend:    excelize.ChartLegend{Position: "none"},
		XAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Month"}}},
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Revenue"}}},
		Dimension: excelize.ChartDimension{Width: 720, Height: 290},
	})
}

func writeTopProducts(f *excelize.File, s *Summary, style int) error {
	if err := f.SetSheetRow(SheetTopProducts, "A1", &[]any{"Description", "Revenue"}); err != nil {
		return err
	}
	for i, p := range s.Top {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetTopProducts, cell, &[]any{p.Description, p.Revenue.InexactFloat64()}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetTopProducts, "A", "A", 40); err != nil {
		return err
	}
	if len(s.Top) == 0 {
		return nil
	}

	last := len(s.Top) + 1
	if err := f.SetCellStyle(SheetTopProducts, "B2", fmt.Sprintf("B%d", last), style); err != nil {
		return err
	}
	// Bar charts plot categories bottom-up; reversing keeps rank 1 on top.
	return f.AddChart(SheetTopProducts, "D2", &excelize.Chart{
		Type: excelize.Bar,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", SheetTopProducts),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetTopProducts, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", SheetTopProducts, last),
		}},
		Title:     []excelize.RichTextRun{{Text: fmt.Sprintf("Top %d Products by Revenue", s.TopN)}},
		Legend:    excelize.ChartLegend{Position: "none"},
		XAxis:     excelize.ChartAxis{ReverseOrder: true},
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Revenue"}}},
		Dimension: excelize.ChartDimension{Width: 720, Height: 430},
	})
}

// WriteWorkbook streams the workbook to w.
func WriteWorkbook(w io.Writer, s *Summary) error {
	f, err := NewWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteTo(w)
	return err
}

// SaveWorkbook writes the workbook to path.
func SaveWorkbook(path string, s *Summary) error {
	f, err := NewWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
