package exportsvc

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rtemis/reimbursement/core/fee"
)

func TestXLSXExporter_Export(t *testing.T) {
	report := fee.Report{
		Header: fee.TableHeading([]string{"uniform"}),
		Rows: []fee.Row{
			{
				SlNo: 1, StudentName: "Asha", ParentName: "Ravi", CurrentClass: "1st", Type: fee.TypeNew, Medium: "english",
				SchoolTuitionFee: 1200, AdditionalFees: []fee.FeeAmount{{Name: "uniform", Amount: 300}}, GovernmentFee: 1000, Total: "1300.00",
			},
			{
				SlNo: 2, StudentName: "Vikram", ParentName: "Meena", CurrentClass: "2nd", Type: fee.TypeOld, Medium: "english",
				SchoolTuitionFee: 800, AdditionalFees: []fee.FeeAmount{{Name: "uniform", Amount: 300}}, GovernmentFee: 1000, Total: "1100.00",
			},
		},
	}

	buf, err := NewXLSXExporter().Export(report, "Govt School 2024-25")
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, "Govt School 2024-25", rows[0][0])
	assert.Equal(t, []string{
		"SNO", "Student Name", "Guardian Name", "Pre-session Class", "New/Old", "Medium",
		"School Tuition Fees (₹)", "Uniform Fees (₹)", "Govt Fees (₹)", "Total (₹)",
	}, rows[1])
	assert.Equal(t, "Asha", rows[2][1])
	assert.Equal(t, "Old", rows[3][4])

	assert.Equal(t, "Grand Total", rows[4][8])
	total, err := strconv.ParseFloat(rows[4][9], 64)
	require.NoError(t, err)
	assert.Equal(t, 2400.0, total)
}

func TestXLSXExporter_Export_empty(t *testing.T) {
	buf, err := NewXLSXExporter().Export(fee.Report{Header: fee.TableHeading(nil), Rows: []fee.Row{}}, "Empty")
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Grand Total", rows[2][7])
}
