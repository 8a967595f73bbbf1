package models

import (
	"strings"
	"time"
)

// CRMTypeKonnektive identifies records originating from the Konnektive CRM.
// It is the only CRM currently feeding the trigger pipeline.
const CRMTypeKonnektive = "knk"

type TriggerType string

const (
	TriggerInitial TriggerType = "initial"
	TriggerRefill  TriggerType = "refill"
)

// Trigger is one outbound pharmacy-fill event reported to WellDyne.
// A trigger is uniquely identified by (crm_type, crm_id, crm_order,
// medication); re-processing the same order+medication replaces the prior
// row rather than duplicating it.
type Trigger struct {
	ID         uint
	CRMType    string
	CRMID      string
	CRMOrder   string
	Medication string
	RxID       string
	RxNumber   string
	Type       TriggerType
	// Raw holds the exact line content sent to WellDyne in the trigger file.
	Raw       string
	Opened    *time.Time
	Shipped   *time.Time
	AdhocType string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligibility is a customer's active coverage window as reported to WellDyne
// for claims adjudication. One window per customer; the window only ever
// extends forward.
type Eligibility struct {
	CustomerID  string
	MemberSince time.Time
	MemberThru  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RxNumber is the pharmacy-issued prescription number currently on file for
// a member. One per member id; replaced on conflict.
type RxNumber struct {
	MemberID string
	Number   string
}

// Outbound is a WellDyne-reported failure of a previously triggered fill.
// Ready stays false until the row has a resolvable order id.
type Outbound struct {
	ID        uint
	CRMType   string
	CRMID     string
	CRMOrder  string
	Queue     string
	Reason    string
	Ready     bool
	TriggerID *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NeverStarted captures feedback rows naming customers for which no trigger
// was ever built. These always need manual attention.
type NeverStarted struct {
	ID        uint
	CRMType   string
	CRMID     string
	Queue     string
	Ready     bool
	CreatedAt time.Time
}

// AdHoc is a manually queued trigger line bypassing normal classification.
type AdHoc struct {
	ID        uint
	CRMType   string
	CRMID     string
	CRMOrder  string
	Type      string
	TriggerID uint
	MemoUser  string
	CreatedAt time.Time
}

const (
	ImportInprog   = "In-Progress"
	ImportComplete = "Completed"
	ImportFail     = "Failed"
)

// FeedbackFile is the bookkeeping row for one downloaded WellDyne report.
type FeedbackFile struct {
	ID           uint
	Name         string
	Report       string
	Timestamp    time.Time
	ImportStatus string
}

// memberIDWidth is the zero-padded width WellDyne expects for member ids.
const memberIDWidth = 6

// PadMemberID renders a CRM customer id as a WellDyne member id, zero-padded
// to six digits.
func PadMemberID(crmID string) string {
	if len(crmID) >= memberIDWidth {
		return crmID
	}
	return strings.Repeat("0", memberIDWidth-len(crmID)) + crmID
}

// StripMemberID converts a WellDyne member id back to the CRM customer id by
// dropping leading zeros. An all-zero id strips to the empty string.
func StripMemberID(memberID string) string {
	return strings.TrimLeft(strings.TrimSpace(memberID), "0")
}
