// package sweep holds the scheduled jobs: the CRM transaction sweep that
// classifies and uploads the day's trigger file, and the full eligibility
// snapshot upload.
package sweep

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/classifier"
	"github.com/maleexcel/welldyne-app/welldyne/crm"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/outbound"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
	"github.com/maleexcel/welldyne-app/welldyne/transfer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const leaseTTL = 30 * time.Minute

const (
	PeriodMorning = "morning"
	PeriodNoon    = "noon"
)

type mailer interface {
	OperatorAlert(ctx context.Context, subject, body string) error
}

// periodWindow maps a run period onto the CRM query window and the file-time
// code stamped on the outbound filename.
func periodWindow(now time.Time, period string) (start, end time.Time, fileTime string, err error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case PeriodMorning:
		// Everything captured since the prior day's noon run.
		return day.AddDate(0, 0, -1).Add(12 * time.Hour), day.Add(4*time.Hour + 30*time.Minute), "043000", nil
	case PeriodNoon:
		return day.Add(4*time.Hour + 30*time.Minute), day.Add(12 * time.Hour), "120000", nil
	default:
		return time.Time{}, time.Time{}, "", errors.Errorf("unknown period %q", period)
	}
}

// TriggerSweep enumerates the window's CRM transactions, classifies each
// order-medication pair, and delivers the accumulated trigger file.
// Classification persists per record; rendering and upload are a separate
// all-or-nothing stage.
type TriggerSweep struct {
	repo         repository.Repository
	querier      crm.TransactionQuerier
	cls          *classifier.Classifier
	handler      transfer.FileHandler
	mailer       mailer
	logger       logrus.FieldLogger
	remoteFolder string

	now func() time.Time
}

func NewTriggerSweep(repo repository.Repository, querier crm.TransactionQuerier,
	cls *classifier.Classifier, handler transfer.FileHandler, m mailer,
	logger logrus.FieldLogger, remoteFolder string) *TriggerSweep {
	return &TriggerSweep{
		repo:         repo,
		querier:      querier,
		cls:          cls,
		handler:      handler,
		mailer:       m,
		logger:       logger,
		remoteFolder: remoteFolder,
		now:          time.Now,
	}
}

// SetNow overrides the sweep's clock. Test use only.
func (s *TriggerSweep) SetNow(now func() time.Time) {
	s.now = now
}

func (s *TriggerSweep) Run(ctx context.Context, period string) error {
	now := s.now()
	start, end, fileTime, err := periodWindow(now, period)
	if err != nil {
		return err
	}

	holder := fmt.Sprintf("triggers-%d", os.Getpid())
	acquired, err := s.repo.AcquireLease(ctx, "welldyne-triggers", holder, leaseTTL)
	if err != nil {
		return errors.Wrap(err, "could not acquire trigger sweep lease")
	}
	if !acquired {
		s.logger.Info("Trigger sweep already running, skipping")
		return nil
	}
	defer func() {
		if err := s.repo.ReleaseLease(ctx, "welldyne-triggers", holder); err != nil {
			s.logger.Error(err)
		}
	}()

	txns, err := s.querier.QueryAll(ctx, start, end)
	if err != nil {
		s.alert(ctx, "WellDyne trigger sweep failed",
			fmt.Sprintf("CRM transaction query for %s window failed: %s", period, err))
		return errors.Wrap(err, "could not query CRM transactions")
	}

	file := outbound.NewTriggerFile()
	failed := 0
	for _, txn := range txns {
		result, err := s.cls.Classify(ctx, EventFromTransaction(txn))
		if err != nil {
			// Best-effort batch: a bad record is logged and skipped, the
			// rest of the run continues.
			s.logger.Errorf("Could not classify order %s for customer %s: %s", txn.OrderID, txn.CustomerID, err)
			failed++
			continue
		}
		file.Add(result.Line)
	}
	s.logger.Infof("Trigger sweep %s: %d lines classified, %d failed", period, file.Len(), failed)

	// The partner expects a file every run, even a header-only one.
	name := outbound.TriggerFilename(now, fileTime)
	if err := s.handler.Upload(ctx, s.remoteFolder, name, file.Render()); err != nil {
		s.alert(ctx, "WellDyne trigger file upload failed",
			fmt.Sprintf("Trigger records are persisted; re-run the upload for %s. Error: %s", name, err))
		return errors.Wrapf(err, "could not upload trigger file %s", name)
	}
	return nil
}

func EventFromTransaction(txn crm.Transaction) classifier.Event {
	return classifier.Event{
		CRMType:    models.CRMTypeKonnektive,
		CRMID:      txn.CustomerID,
		CRMOrder:   txn.OrderID,
		Medication: txn.Medication,
		RxID:       txn.RxID,
		TypeHint:   txn.TypeHint(),
		FirstName:  txn.FirstName,
		LastName:   txn.LastName,
		DOB:        txn.DOB,
		Address1:   txn.Address1,
		Address2:   txn.Address2,
		City:       txn.City,
		State:      txn.State,
		PostalCode: txn.PostalCode,
	}
}

func (s *TriggerSweep) alert(ctx context.Context, subject, body string) {
	if err := s.mailer.OperatorAlert(ctx, subject, body); err != nil {
		s.logger.Errorf("Could not send operator alert %q: %s", subject, err)
	}
}

// EligibilitySweep renders and uploads the full eligibility snapshot.
type EligibilitySweep struct {
	repo         repository.Repository
	builder      *outbound.EligibilityFileBuilder
	handler      transfer.FileHandler
	mailer       mailer
	logger       logrus.FieldLogger
	remoteFolder string

	now func() time.Time
}

func NewEligibilitySweep(repo repository.Repository, builder *outbound.EligibilityFileBuilder,
	handler transfer.FileHandler, m mailer, logger logrus.FieldLogger, remoteFolder string) *EligibilitySweep {
	return &EligibilitySweep{
		repo:         repo,
		builder:      builder,
		handler:      handler,
		mailer:       m,
		logger:       logger,
		remoteFolder: remoteFolder,
		now:          time.Now,
	}
}

// SetNow overrides the sweep's clock. Test use only.
func (s *EligibilitySweep) SetNow(now func() time.Time) {
	s.now = now
}

func (s *EligibilitySweep) Run(ctx context.Context, fileTime string) error {
	now := s.now()

	holder := fmt.Sprintf("eligibility-%d", os.Getpid())
	acquired, err := s.repo.AcquireLease(ctx, "welldyne-eligibility", holder, leaseTTL)
	if err != nil {
		return errors.Wrap(err, "could not acquire eligibility sweep lease")
	}
	if !acquired {
		s.logger.Info("Eligibility sweep already running, skipping")
		return nil
	}
	defer func() {
		if err := s.repo.ReleaseLease(ctx, "welldyne-eligibility", holder); err != nil {
			s.logger.Error(err)
		}
	}()

	data, err := s.builder.Generate(ctx, now)
	if err != nil {
		return errors.Wrap(err, "could not render eligibility snapshot")
	}

	name := outbound.EligibilityFilename(now, fileTime)
	if err := s.handler.Upload(ctx, s.remoteFolder, name, data); err != nil {
		if merr := s.mailer.OperatorAlert(ctx, "WellDyne eligibility file upload failed",
			fmt.Sprintf("Re-run the eligibility upload for %s. Error: %s", name, err)); merr != nil {
			s.logger.Error(merr)
		}
		return errors.Wrapf(err, "could not upload eligibility file %s", name)
	}
	return nil
}
