package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/report"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestBuild(t *testing.T) {
	rows := []report.Row{
		{{Key: "A", Value: 1}, {Key: "B", Value: "x"}},
		{{Key: "A", Value: 22}, {Key: "B", Value: "yy"}},
	}

	data, err := report.Build("Stock", rows)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f := openWorkbook(t, data)

	got, err := f.GetRows("Stock")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B"}, got[0])
	assert.Equal(t, []string{"1", "x"}, got[1])
	assert.Equal(t, []string{"22", "yy"}, got[2])

	widthA, err := f.GetColWidth("Stock", "A")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, widthA, float64(len("A")+2))
	assert.GreaterOrEqual(t, widthA, float64(len("22")+2))

	widthB, err := f.GetColWidth("Stock", "B")
	require.NoError(t, err)
	assert.Equal(t, float64(len("yy")+2), widthB)

	styleID, err := f.GetCellStyle("Stock", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
	require.NotNil(t, style.Alignment)
	assert.Equal(t, "center", style.Alignment.Horizontal)
	assert.Len(t, style.Border, 4)
}

func TestBuild_ColumnOrderFollowsFirstRow(t *testing.T) {
	rows := []report.Row{
		{{Key: "Name", Value: "Router"}, {Key: "Qty", Value: 3}},
		{{Key: "Qty", Value: 5}, {Key: "Name", Value: "Cable"}},
	}

	data, err := report.Build("", rows)
	require.NoError(t, err)

	got, err := openWorkbook(t, data).GetRows(report.DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Qty"}, got[0])
	assert.Equal(t, []string{"Cable", "5"}, got[2])
}

func TestBuild_Deterministic(t *testing.T) {
	rows := []report.Row{{{Key: "Serial", Value: "SN-1"}}}

	first, err := report.Build("S", rows)
	require.NoError(t, err)
	second, err := report.Build("S", rows)
	require.NoError(t, err)

	a, err := openWorkbook(t, first).GetRows("S")
	require.NoError(t, err)
	b, err := openWorkbook(t, second).GetRows("S")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_NoRows(t *testing.T) {
	_, err := report.Build("Empty", nil)
	assert.ErrorIs(t, err, report.ErrNoRows)
	assert.EqualError(t, err, "no rows to export")
}

func TestBuild_PointerValues(t *testing.T) {
	holder := uuid.MustParse("5f0c7e52-8a57-4a38-9f3e-0d6a3c1b2e44")
	returned := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	qty := 7
	rows := []report.Row{
		{{Key: "Holder", Value: (*uuid.UUID)(nil)}, {Key: "Returned", Value: (*time.Time)(nil)}, {Key: "Qty", Value: (*int)(nil)}},
		{{Key: "Holder", Value: &holder}, {Key: "Returned", Value: &returned}, {Key: "Qty", Value: &qty}},
	}

	var data []byte
	require.NotPanics(t, func() {
		var err error
		data, err = report.Build("Stock", rows)
		require.NoError(t, err)
	})

	got, err := openWorkbook(t, data).GetRows("Stock")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Empty(t, got[1])
	assert.Equal(t, []string{holder.String(), "2024-03-05 14:30", "7"}, got[2])
}
