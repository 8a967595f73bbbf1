// package classifier decides whether an incoming pharmacy order event is a
// new prescription or a refill, extends the customer's eligibility window,
// and persists the trigger line destined for the WellDyne batch file.
package classifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/client"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// coverageDays is how far forward each trigger event pushes the customer's
// member_thru date.
const coverageDays = 15

// Event is one order-medication pair pulled from the CRM.
type Event struct {
	CRMType    string
	CRMID      string
	CRMOrder   string
	Medication string
	RxID       string
	// TypeHint is the caller's initial guess, "initial" or "refill".
	TypeHint   models.TriggerType
	FirstName  string
	LastName   string
	DOB        string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
}

// Result is the stored classification plus the exact line appended to the
// outbound batch.
type Result struct {
	Type models.TriggerType
	Line string
}

type Classifier struct {
	repo      repository.Repository
	allergies client.AllergyLookup
	logger    logrus.FieldLogger

	// now substitutes for the wall clock in tests.
	now func() time.Time
}

func New(repo repository.Repository, allergies client.AllergyLookup, logger logrus.FieldLogger) *Classifier {
	return &Classifier{repo: repo, allergies: allergies, logger: logger, now: time.Now}
}

// SetNow overrides the classifier's clock. Test use only.
func (c *Classifier) SetNow(now func() time.Time) {
	c.now = now
}

func (e Event) validate() error {
	switch {
	case e.CRMType == "":
		return errors.New("event missing crm type")
	case e.CRMID == "":
		return errors.New("event missing crm id")
	case e.CRMOrder == "":
		return errors.New("event missing crm order")
	case e.Medication == "":
		return errors.New("event missing medication")
	case e.TypeHint != models.TriggerInitial && e.TypeHint != models.TriggerRefill:
		return pkgerrors.Errorf("event has invalid type hint %q", e.TypeHint)
	}
	return nil
}

// Classify runs the reclassification rules against the most recent prior
// trigger for the same customer+medication, extends the eligibility window,
// and upserts the trigger. A validation or persistence error aborts only
// this record.
func (c *Classifier) Classify(ctx context.Context, event Event) (*Result, error) {
	if err := event.validate(); err != nil {
		return nil, err
	}

	triggerType := event.TypeHint
	rxNumber := ""

	prior, err := c.repo.GetPriorTrigger(ctx, event.CRMType, event.CRMID, event.Medication, event.CRMOrder)
	if err != nil && !errors.Is(err, repository.ErrTriggerNotFound) {
		return nil, pkgerrors.Wrapf(err, "could not look up prior trigger for customer %s", event.CRMID)
	}

	switch event.TypeHint {
	case models.TriggerInitial:
		// The same prescription recurring under a new order is not a new
		// script.
		if prior != nil && prior.RxID == event.RxID {
			triggerType = models.TriggerRefill
		}
	case models.TriggerRefill:
		if prior != nil && prior.RxID != event.RxID {
			// The prescription changed even though the order cadence looks
			// like a refill.
			triggerType = models.TriggerInitial
		} else {
			memberID := models.PadMemberID(event.CRMID)
			rx, err := c.repo.GetRxNumber(ctx, memberID)
			if err != nil && !errors.Is(err, repository.ErrRxNumberNotFound) {
				return nil, pkgerrors.Wrapf(err, "could not look up rx number for member %s", memberID)
			}
			if rx != nil {
				rxNumber = rx.Number
			}
		}
	}

	if err := c.extendEligibility(ctx, event.CRMID); err != nil {
		return nil, err
	}

	allergyText, err := c.allergies.Allergies(ctx, event.CRMID)
	if err != nil {
		c.logger.Warnf("Could not look up allergies for customer %s, sending blank: %s", event.CRMID, err)
		allergyText = ""
	}

	line := strings.Join([]string{
		string(triggerType),
		event.Medication,
		event.RxID,
		event.FirstName,
		event.LastName,
		event.DOB,
		event.Address1,
		event.Address2,
		event.City,
		event.State,
		event.PostalCode,
		models.PadMemberID(event.CRMID),
		allergyText,
	}, ",")

	trigger := models.Trigger{
		CRMType:    event.CRMType,
		CRMID:      event.CRMID,
		CRMOrder:   event.CRMOrder,
		Medication: event.Medication,
		RxID:       event.RxID,
		RxNumber:   rxNumber,
		Type:       triggerType,
		Raw:        line,
	}
	if err := c.repo.UpsertTrigger(ctx, trigger); err != nil {
		return nil, pkgerrors.Wrapf(err, "could not persist trigger for customer %s order %s", event.CRMID, event.CRMOrder)
	}

	return &Result{Type: triggerType, Line: line}, nil
}

// extendEligibility upserts the customer's coverage window: member_since is
// today at midnight, member_thru today plus the coverage length. On conflict
// only member_thru moves, so the window never retreats.
func (c *Classifier) extendEligibility(ctx context.Context, customerID string) error {
	now := c.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	elig := models.Eligibility{
		CustomerID:  customerID,
		MemberSince: since,
		MemberThru:  since.AddDate(0, 0, coverageDays),
	}
	if err := c.repo.UpsertEligibility(ctx, elig); err != nil {
		return pkgerrors.Wrapf(err, "could not extend eligibility for customer %s", customerID)
	}
	return nil
}
