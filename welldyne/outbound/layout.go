package outbound

import "strings"

// The eligibility file is fixed-width positional with no header. Field
// widths must match the WellDyne layout character for character: free text
// longer than its column is truncated, and a missing value renders as spaces
// of the full width so column alignment survives.
type column struct {
	name  string
	width int
}

var eligibilityLayout = []column{
	{"group_id", 15},
	{"member_id", 18},
	{"person_code", 2},
	{"relationship", 1},
	{"last_name", 25},
	{"first_name", 15},
	{"middle_initial", 1},
	{"sex", 1},
	{"dob", 8},
	{"address_1", 30},
	{"address_2", 30},
	{"city", 20},
	{"state", 2},
	{"zip", 9},
	{"country", 3},
	{"phone", 10},
	{"family_flag", 1},
	{"family_type", 1},
	{"family_id", 18},
	{"benefit_code", 2},
	{"effective_from", 8},
	{"effective_thru", 8},
	{"cardholder_last", 25},
	{"cardholder_first", 15},
	{"multi_birth_code", 1},
	{"diagnosis_1", 8},
	{"diagnosis_2", 8},
	{"diagnosis_3", 8},
	{"prior_auth", 11},
	{"person_type", 1},
	{"language_code", 2},
	{"plan_code", 8},
	{"rider_code", 8},
	{"copay_code", 2},
	{"producer_id", 10},
	{"cob_indicator", 1},
	{"smoker_flag", 1},
	{"email", 50},
	{"location_code", 8},
	{"template", 11},
}

// LineLength is the exact character length of every eligibility line.
func LineLength() int {
	total := 0
	for _, col := range eligibilityLayout {
		total += col.width
	}
	return total
}

// fixedWidth left-justifies a value into its column, truncating overflow and
// space-padding the remainder.
func fixedWidth(value string, width int) string {
	if len(value) > width {
		return value[:width]
	}
	return value + strings.Repeat(" ", width-len(value))
}

// renderLine concatenates values positionally against the eligibility
// layout. Missing trailing values render as spaces.
func renderLine(values map[string]string) string {
	var sb strings.Builder
	sb.Grow(LineLength())
	for _, col := range eligibilityLayout {
		sb.WriteString(fixedWidth(values[col.name], col.width))
	}
	return sb.String()
}
