package outbound

import (
	"fmt"
	"strings"
	"time"
)

// TriggerFileHeader is the fixed header row WellDyne expects on every
// trigger file.
const TriggerFileHeader = "Type, Medication (Name + Strength), Prescription Number, Patient First Name, Patient Last Name, Patient Date of Birth, Address, Address #2, City, State, Patient Zip Code, Member ID Number, Allergies"

// TriggerFile accumulates classified trigger lines for one run. Rendering
// and delivery are a separate failure domain from classification: trigger
// rows are persisted as they are classified, so a failed upload is recovered
// by re-running the upload step alone.
type TriggerFile struct {
	lines []string
}

func NewTriggerFile() *TriggerFile {
	return &TriggerFile{}
}

func (f *TriggerFile) Add(line string) {
	f.lines = append(f.lines, line)
}

func (f *TriggerFile) Len() int {
	return len(f.lines)
}

// Render produces the complete file: the fixed header row followed by one
// line per classified trigger.
func (f *TriggerFile) Render() []byte {
	rows := append([]string{TriggerFileHeader}, f.lines...)
	return []byte(strings.Join(rows, "\n") + "\n")
}

// TriggerFilename stamps the outbound trigger file for a run. fileTime is a
// caller-supplied suffix distinguishing multiple runs per day.
func TriggerFilename(date time.Time, fileTime string) string {
	return fmt.Sprintf("TRIGGER%s%s.TXT", date.Format("20060102"), fileTime)
}

// EligibilityFilename stamps the outbound eligibility snapshot.
func EligibilityFilename(date time.Time, fileTime string) string {
	return fmt.Sprintf("RWTMEXCEL%s%s.TXT", date.Format("20060102"), fileTime)
}
