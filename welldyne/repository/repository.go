// package repository contains all of the methods needed to interact with the
// trigger/eligibility data.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/models"
)

type Repository interface {
	triggerRepository
	eligibilityRepository
	rxNumberRepository
	queueRepository
	feedbackFileRepository
	leaseRepository
}

type triggerRepository interface {
	// GetPriorTrigger returns the most recent trigger for the same
	// (crmType, crmID, medication) whose crm_order differs from
	// excludeOrder, or ErrTriggerNotFound.
	GetPriorTrigger(ctx context.Context, crmType, crmID, medication, excludeOrder string) (*models.Trigger, error)

	// GetLatestTrigger returns the most recent trigger for a customer
	// across all medications, or ErrTriggerNotFound.
	GetLatestTrigger(ctx context.Context, crmType, crmID string) (*models.Trigger, error)

	GetTriggerByID(ctx context.Context, id uint) (*models.Trigger, error)

	// UpsertTrigger persists a trigger, replacing any existing row with the
	// same (crm_type, crm_id, crm_order, medication).
	UpsertTrigger(ctx context.Context, trigger models.Trigger) error

	// UpdateTriggerShipped sets the shipped date on a trigger. Shipped
	// implies opened, so the opened date is set to the same value when not
	// already present.
	UpdateTriggerShipped(ctx context.Context, id uint, shipped time.Time) error
}

type eligibilityRepository interface {
	// UpsertEligibility inserts a coverage window keyed by customer; on
	// conflict only member_thru and updated_at change, so the window
	// extends forward and never retreats.
	UpsertEligibility(ctx context.Context, elig models.Eligibility) error

	// GetEligibilities returns every window with member_thru on or after
	// the cutoff, ordered by customer id.
	GetEligibilities(ctx context.Context, thruCutoff time.Time) ([]models.Eligibility, error)
}

type rxNumberRepository interface {
	GetRxNumber(ctx context.Context, memberID string) (*models.RxNumber, error)

	UpsertRxNumber(ctx context.Context, rx models.RxNumber) error
}

type queueRepository interface {
	// UpsertOutbound replaces any existing row with the same
	// (crm_type, crm_id, queue).
	UpsertOutbound(ctx context.Context, ob models.Outbound) error

	GetOutboundByID(ctx context.Context, id uint) (*models.Outbound, error)

	UpdateOutboundReady(ctx context.Context, id uint, ready bool) error

	DeleteOutbound(ctx context.Context, id uint) error

	// InsertNeverStarted ignores conflicts so repeated feedback for the
	// same customer does not duplicate rows.
	InsertNeverStarted(ctx context.Context, ns models.NeverStarted) error

	// InsertAdHoc ignores conflicts; duplicate clicks are swallowed.
	InsertAdHoc(ctx context.Context, adhoc models.AdHoc) error
}

type feedbackFileRepository interface {
	CreateFeedbackFile(ctx context.Context, file *models.FeedbackFile) error

	UpdateFeedbackFileStatus(ctx context.Context, id uint, status string) error
}

type leaseRepository interface {
	// AcquireLease attempts a check-and-set on the named job lease. It
	// returns false when another holder owns an unexpired lease.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)

	ReleaseLease(ctx context.Context, name, holder string) error
}

var (
	ErrTriggerNotFound    = errors.New("no trigger found for given identifiers")
	ErrRxNumberNotFound   = errors.New("no rx number on file for given member id")
	ErrOutboundNotFound   = errors.New("no outbound record found for given id")
	ErrOutboundNotUpdated = errors.New("outbound record was not updated, no match found")
)
