package exportsvc

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/rtemis/reimbursement/core/fee"
)

// SheetName is the name of the worksheet holding the report.
const SheetName = "Reimbursement"

// ContentType is the media type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSXExporter renders reimbursement reports as Excel workbooks.
type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Export writes the title on the first row, the report header on the second one, one row per student
// and a grand total row.
func (XLSXExporter) Export(report fee.Report, title string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, errors.Wrap(err, "creating sheet")
	}
	f.SetActiveSheet(index)
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return nil, errors.Wrap(err, "deleting default sheet")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating style")
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return nil, errors.Wrap(err, "creating style")
	}

	ncols := len(report.Header)
	lastCol, err := excelize.ColumnNumberToName(maxInt(ncols, 1))
	if err != nil {
		return nil, errors.Wrap(err, "naming columns")
	}

	// title
	if err = f.SetCellValue(SheetName, "A1", title); err != nil {
		return nil, errors.Wrap(err, "writing title")
	}
	if ncols > 1 {
		if err = f.MergeCell(SheetName, "A1", lastCol+"1"); err != nil {
			return nil, errors.Wrap(err, "merging title")
		}
	}

	// header
	header := make([]interface{}, 0, ncols)
	for _, col := range report.Header {
		header = append(header, col.Label)
	}
	if err = f.SetSheetRow(SheetName, "A2", &header); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}
	if err = f.SetCellStyle(SheetName, "A1", lastCol+"2", bold); err != nil {
		return nil, errors.Wrap(err, "styling header")
	}

	// rows
	for i, row := range report.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		values := rowValues(row)
		if err = f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, errors.Wrapf(err, "writing row %d", i+1)
		}
	}

	// grand total
	totalRow := len(report.Rows) + 3
	labelCell, _ := excelize.CoordinatesToCellName(maxInt(ncols-1, 1), totalRow)
	totalCell, _ := excelize.CoordinatesToCellName(maxInt(ncols, 1), totalRow)
	if err = f.SetCellValue(SheetName, labelCell, "Grand Total"); err != nil {
		return nil, errors.Wrap(err, "writing total")
	}
	if err = f.SetCellValue(SheetName, totalCell, report.Total()); err != nil {
		return nil, errors.Wrap(err, "writing total")
	}
	if err = f.SetCellStyle(SheetName, labelCell, totalCell, bold); err != nil {
		return nil, errors.Wrap(err, "styling total")
	}

	if ncols > 6 && len(report.Rows) > 0 {
		firstAmount, _ := excelize.CoordinatesToCellName(7, 3)
		if err = f.SetCellStyle(SheetName, firstAmount, lastCol+strconv.Itoa(totalRow-1), amount); err != nil {
			return nil, errors.Wrap(err, "styling amounts")
		}
	}
	_ = f.SetColWidth(SheetName, "B", "C", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf, nil
}

// rowValues follows the column order of fee.TableHeading.
func rowValues(row fee.Row) []interface{} {
	values := []interface{}{
		row.SlNo,
		row.StudentName,
		row.ParentName,
		row.CurrentClass,
		row.Type,
		row.Medium,
		row.SchoolTuitionFee,
	}
	for _, a := range row.AdditionalFees {
		values = append(values, a.Amount)
	}
	return append(values, row.GovernmentFee, fee.ParseAmount(row.Total))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
