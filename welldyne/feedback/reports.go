package feedback

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Report identifies one of the partner-produced feedback spreadsheets.
type Report string

const (
	ReportShipped  Report = "shipped"
	ReportOutbound Report = "outbound"
	ReportOpened   Report = "opened"
)

// Slot selects which of the day's deliveries to fetch. The afternoon
// delivery carries a "3PM Report" suffix in the partner's filename.
const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
)

var reportBasenames = map[Report]string{
	ReportShipped:  "MaleExcel_DailyShippedOrders",
	ReportOutbound: "MaleExcel_OutboundFailedClaims",
	ReportOpened:   "MaleExcel_DailyOpenedClaims",
}

// Filename builds the partner's name for a report delivered on the given
// date and slot.
func Filename(report Report, date time.Time, slot string) (string, error) {
	base, ok := reportBasenames[report]
	if !ok {
		return "", errors.Errorf("unknown report type %q", report)
	}

	stamp := date.Format("010206")
	switch slot {
	case SlotMorning:
		return fmt.Sprintf("%s_%s.xlsx", base, stamp), nil
	case SlotAfternoon:
		return fmt.Sprintf("%s_%s_3PM Report.xlsx", base, stamp), nil
	default:
		return "", errors.Errorf("unknown report slot %q", slot)
	}
}

// Column indexes per report type, zero based. The partner addresses columns
// positionally; there are no stable header names to key on.
const (
	shipMemberIDCol   = 0
	shipDateCol       = 1
	shipMedicationCol = 2
	shipRxNumberCol   = 3
	shipTrackingCol   = 4
)

const (
	obMemberIDCol  = 0
	obCRMOrderCol  = 1
	obReasonCol    = 2
	obExceptionCol = 3
)

// The partner is inconsistent about date formats across report versions.
var feedbackDateFormats = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
}

func parseFeedbackDate(s string) (time.Time, error) {
	for _, layout := range feedbackDateFormats {
		if t, err := time.Parse(layout, s); err == nil && !t.IsZero() {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable date %q", s)
}

// cell reads a column from a spreadsheet row, tolerating short rows.
func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}
