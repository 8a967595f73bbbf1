package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilename(t *testing.T) {
	date := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		report   Report
		slot     string
		expected string
	}{
		{ReportShipped, SlotMorning, "MaleExcel_DailyShippedOrders_030124.xlsx"},
		{ReportShipped, SlotAfternoon, "MaleExcel_DailyShippedOrders_030124_3PM Report.xlsx"},
		{ReportOutbound, SlotMorning, "MaleExcel_OutboundFailedClaims_030124.xlsx"},
		{ReportOpened, SlotMorning, "MaleExcel_DailyOpenedClaims_030124.xlsx"},
	}
	for _, tt := range tests {
		name, err := Filename(tt.report, date, tt.slot)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, name)
	}
}

func TestFilenameRejectsUnknowns(t *testing.T) {
	_, err := Filename(Report("bogus"), time.Now(), SlotMorning)
	assert.Error(t, err)

	_, err = Filename(ReportShipped, time.Now(), "midnight")
	assert.Error(t, err)
}

func TestParseFeedbackDate(t *testing.T) {
	expected := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01", "3/1/2024", "03/01/2024", "3/1/24"} {
		parsed, err := parseFeedbackDate(s)
		assert.NoError(t, err, s)
		assert.Equal(t, expected, parsed, s)
	}

	_, err := parseFeedbackDate("March 1st")
	assert.Error(t, err)
}

func TestBuildReason(t *testing.T) {
	assert.Equal(t, EmptyReason, buildReason("", " "))
	assert.Equal(t, "bad address", buildReason("bad address", ""))
	assert.Equal(t, "code 42", buildReason("", "code 42"))
	assert.Equal(t, "bad address: code 42", buildReason("bad address", "code 42"))
}

func TestCellToleratesShortRows(t *testing.T) {
	row := []string{"a", "b"}
	assert.Equal(t, "b", cell(row, 1))
	assert.Equal(t, "", cell(row, 5))
}
