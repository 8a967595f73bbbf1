// package exceptions manages the Outbound / NeverStarted / AdHoc queues:
// the side tables capturing orders that failed normal processing.
package exceptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoResolvableOrder gates the ready flag: an outbound row with a
	// blank crm_order still needs a human.
	ErrNoResolvableOrder = errors.New("outbound record has no resolvable crm order")

	ErrNotReady = errors.New("outbound record is not marked ready for resend")
)

// manualQueue is where triggers that cannot be rebuilt automatically land.
const manualQueue = "manual"

type mailer interface {
	OperatorAlert(ctx context.Context, subject, body string) error
}

type Service struct {
	repo   repository.Repository
	mailer mailer
	logger logrus.FieldLogger
}

func NewService(repo repository.Repository, m mailer, logger logrus.FieldLogger) *Service {
	return &Service{repo: repo, mailer: m, logger: logger}
}

// MarkOutboundReady flips ready on an outbound row. The flag never flips
// automatically; this explicit call is the only path, and it refuses rows
// without a resolvable order id.
func (s *Service) MarkOutboundReady(ctx context.Context, id uint) error {
	ob, err := s.repo.GetOutboundByID(ctx, id)
	if err != nil {
		return err
	}
	if ob.CRMOrder == "" {
		return ErrNoResolvableOrder
	}
	return s.repo.UpdateOutboundReady(ctx, id, true)
}

// ResendOutbound re-queues a ready outbound failure as an adhoc trigger and
// removes it from the outbound queue.
func (s *Service) ResendOutbound(ctx context.Context, id uint, memoUser string) error {
	ob, err := s.repo.GetOutboundByID(ctx, id)
	if err != nil {
		return err
	}
	if !ob.Ready {
		return ErrNotReady
	}

	adhoc := models.AdHoc{
		CRMType:  ob.CRMType,
		CRMID:    ob.CRMID,
		CRMOrder: ob.CRMOrder,
		Type:     "resend",
		MemoUser: memoUser,
	}
	if ob.TriggerID != nil {
		adhoc.TriggerID = *ob.TriggerID
	}
	if err := s.repo.InsertAdHoc(ctx, adhoc); err != nil {
		return pkgerrors.Wrapf(err, "could not queue adhoc resend for outbound %d", id)
	}
	return s.repo.DeleteOutbound(ctx, id)
}

// CreateAdHoc queues a trigger for adhoc resend. A trigger without raw line
// content cannot be resent mechanically, so it routes to the manual queue
// and an operator is notified instead. Duplicate requests are swallowed
// silently.
func (s *Service) CreateAdHoc(ctx context.Context, triggerID uint, adhocType, memoUser string) error {
	trigger, err := s.repo.GetTriggerByID(ctx, triggerID)
	if err != nil {
		return err
	}

	if trigger.Raw == "" {
		ns := models.NeverStarted{
			CRMType: trigger.CRMType,
			CRMID:   trigger.CRMID,
			Queue:   manualQueue,
		}
		if err := s.repo.InsertNeverStarted(ctx, ns); err != nil {
			return pkgerrors.Wrapf(err, "could not queue trigger %d for manual review", triggerID)
		}
		subject := fmt.Sprintf("Trigger %d needs manual adhoc handling", triggerID)
		body := fmt.Sprintf("Trigger %d for customer %s has no raw line content; an adhoc line cannot be built automatically.",
			triggerID, trigger.CRMID)
		if err := s.mailer.OperatorAlert(ctx, subject, body); err != nil {
			s.logger.Errorf("Could not send operator alert for trigger %d: %s", triggerID, err)
		}
		return nil
	}

	adhoc := models.AdHoc{
		CRMType:   trigger.CRMType,
		CRMID:     trigger.CRMID,
		CRMOrder:  trigger.CRMOrder,
		Type:      adhocType,
		TriggerID: trigger.ID,
		MemoUser:  memoUser,
	}
	return s.repo.InsertAdHoc(ctx, adhoc)
}
