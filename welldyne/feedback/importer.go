// package feedback downloads WellDyne's report spreadsheets and reconciles
// them against existing trigger and exception-queue state. Partner files are
// untrusted: every row is recovered individually so one bad row cannot lose
// a day's reconciliation.
package feedback

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/client"
	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
	"github.com/maleexcel/welldyne-app/welldyne/transfer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// leaseTTL bounds how long a crashed run can block the next scheduler
// firing.
const leaseTTL = 30 * time.Minute

// EmptyReason is recorded when the partner supplies neither a reason nor an
// exception for a failed claim.
const EmptyReason = "(empty)"

type Importer struct {
	repo         repository.Repository
	handler      transfer.FileHandler
	notifier     client.NotificationSender
	mailer       notifyMailer
	logger       logrus.FieldLogger
	remoteFolder string

	// now substitutes for the wall clock in tests.
	now func() time.Time
}

// notifyMailer is the slice of notify.Mailer the importer needs.
type notifyMailer interface {
	OperatorAlert(ctx context.Context, subject, body string) error
}

func NewImporter(repo repository.Repository, handler transfer.FileHandler,
	notifier client.NotificationSender, mailer notifyMailer,
	logger logrus.FieldLogger, remoteFolder string) *Importer {
	return &Importer{
		repo:         repo,
		handler:      handler,
		notifier:     notifier,
		mailer:       mailer,
		logger:       logger,
		remoteFolder: remoteFolder,
		now:          time.Now,
	}
}

// SetNow overrides the importer's clock. Test use only.
func (im *Importer) SetNow(now func() time.Time) {
	im.now = now
}

// Run downloads and reconciles one report. An already-held lease is a no-op
// reported as success so overlapping scheduler firings never double-process.
// A missing remote file alerts an operator and returns an error; everything
// row-level is logged, emailed, and skipped.
func (im *Importer) Run(ctx context.Context, report Report, slot string) error {
	leaseName := "welldyne-feedback-" + string(report)
	holder := fmt.Sprintf("feedback-%d", os.Getpid())
	acquired, err := im.repo.AcquireLease(ctx, leaseName, holder, leaseTTL)
	if err != nil {
		return errors.Wrapf(err, "could not acquire lease %s", leaseName)
	}
	if !acquired {
		im.logger.Infof("Report %s already running, skipping", report)
		return nil
	}
	defer func() {
		if err := im.repo.ReleaseLease(ctx, leaseName, holder); err != nil {
			im.logger.Error(err)
		}
	}()

	name, err := Filename(report, im.now(), slot)
	if err != nil {
		return err
	}

	localPath, err := im.handler.Download(ctx, im.remoteFolder, name)
	if err != nil {
		if errors.Is(err, transfer.ErrFileNotFound) {
			im.logger.Errorf("Expected report file %s not found on transfer endpoint", name)
			im.alert(ctx, fmt.Sprintf("WellDyne %s report missing", report),
				fmt.Sprintf("Expected file %s was not present on the transfer endpoint.", name))
			return errors.Errorf("report file %s not found", name)
		}
		return errors.Wrapf(err, "could not download report file %s", name)
	}
	// The downloaded copy is always removed, even for the inert opened
	// report.
	defer func() {
		if err := os.Remove(localPath); err != nil {
			im.logger.Error(err)
		}
	}()

	file := &models.FeedbackFile{
		Name:         name,
		Report:       string(report),
		Timestamp:    im.now(),
		ImportStatus: models.ImportInprog,
	}
	if err := im.repo.CreateFeedbackFile(ctx, file); err != nil {
		return errors.Wrapf(err, "could not create feedback file record for %s", name)
	}

	rows, err := readRows(localPath)
	if err == nil {
		switch report {
		case ReportShipped:
			err = im.importShipped(ctx, name, rows)
		case ReportOutbound:
			err = im.importOutbound(ctx, name, rows)
		case ReportOpened:
			err = im.importOpened(name, rows)
		}
	}

	if err != nil {
		if serr := im.repo.UpdateFeedbackFileStatus(ctx, file.ID, models.ImportFail); serr != nil {
			im.logger.Error(serr)
		}
		return err
	}
	return im.repo.UpdateFeedbackFileStatus(ctx, file.ID, models.ImportComplete)
}

func readRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open spreadsheet %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read sheet %q from %s", sheet, path)
	}
	return rows, nil
}

// importShipped reconciles the daily shipped orders report: the most recent
// trigger for each member gets its shipped date (shipped implies opened),
// the member's current rx number is replaced, and the tracking code is
// forwarded downstream.
func (im *Importer) importShipped(ctx context.Context, name string, rows [][]string) error {
	var badRows []string
	processed := 0

	for i, row := range rows {
		if i == 0 {
			// header row
			continue
		}

		crmID := models.StripMemberID(cell(row, shipMemberIDCol))
		if crmID == "" {
			msg := fmt.Sprintf("row %d has no member id", i+1)
			im.logger.Errorf("Shipped report %s: %s", name, msg)
			badRows = append(badRows, msg)
			continue
		}

		shipDate, err := parseFeedbackDate(strings.TrimSpace(cell(row, shipDateCol)))
		if err != nil {
			msg := fmt.Sprintf("row %d for member %s: %s", i+1, crmID, err)
			im.logger.Errorf("Shipped report %s: %s", name, msg)
			badRows = append(badRows, msg)
			continue
		}

		trigger, err := im.repo.GetLatestTrigger(ctx, models.CRMTypeKonnektive, crmID)
		if err != nil {
			if errors.Is(err, repository.ErrTriggerNotFound) {
				msg := fmt.Sprintf("row %d: no trigger on file for member %s", i+1, crmID)
				im.logger.Warnf("Shipped report %s: %s", name, msg)
				badRows = append(badRows, msg)
				continue
			}
			return errors.Wrapf(err, "could not look up trigger for customer %s", crmID)
		}

		if err := im.repo.UpdateTriggerShipped(ctx, trigger.ID, shipDate); err != nil {
			return errors.Wrapf(err, "could not mark trigger %d shipped", trigger.ID)
		}

		if rxNumber := strings.TrimSpace(cell(row, shipRxNumberCol)); rxNumber != "" {
			rx := models.RxNumber{MemberID: models.PadMemberID(crmID), Number: rxNumber}
			if err := im.repo.UpsertRxNumber(ctx, rx); err != nil {
				return errors.Wrapf(err, "could not store rx number for member %s", crmID)
			}
		}

		tracking := strings.TrimSpace(cell(row, shipTrackingCol))
		medication := strings.TrimSpace(cell(row, shipMedicationCol))
		if tracking != "" {
			if err := im.notifier.ShippedNotice(ctx, crmID, medication, tracking); err != nil {
				// Notification delivery is best effort; reconciliation
				// already happened.
				im.logger.Errorf("Could not send shipped notice for customer %s: %s", crmID, err)
			}
		}
		processed++
	}

	im.logger.Infof("Shipped report %s: %d rows reconciled, %d skipped", name, processed, len(badRows))
	im.reportBadRows(ctx, name, badRows)
	return nil
}

// importOutbound reconciles the outbound failed claims report into the
// Outbound exception queue. Repeated feedback for the same failure replaces
// the prior row; ready always starts false.
func (im *Importer) importOutbound(ctx context.Context, name string, rows [][]string) error {
	var badRows []string
	processed := 0

	for i, row := range rows {
		if i == 0 {
			continue
		}

		crmID := models.StripMemberID(cell(row, obMemberIDCol))
		if crmID == "" {
			msg := fmt.Sprintf("row %d has no member id", i+1)
			im.logger.Errorf("Outbound report %s: %s", name, msg)
			badRows = append(badRows, msg)
			continue
		}

		reason := buildReason(cell(row, obReasonCol), cell(row, obExceptionCol))
		ob := models.Outbound{
			CRMType:  models.CRMTypeKonnektive,
			CRMID:    crmID,
			CRMOrder: strings.TrimSpace(cell(row, obCRMOrderCol)),
			Queue:    string(ReportOutbound),
			Reason:   reason,
			Ready:    false,
		}

		trigger, err := im.repo.GetLatestTrigger(ctx, models.CRMTypeKonnektive, crmID)
		switch {
		case err == nil:
			ob.TriggerID = &trigger.ID
			if ob.CRMOrder == "" {
				ob.CRMOrder = trigger.CRMOrder
			}
		case errors.Is(err, repository.ErrTriggerNotFound):
			// Feedback for a customer that never produced a trigger goes to
			// the never-started queue for manual review.
			ns := models.NeverStarted{CRMType: models.CRMTypeKonnektive, CRMID: crmID, Queue: reason}
			if err := im.repo.InsertNeverStarted(ctx, ns); err != nil {
				return errors.Wrapf(err, "could not record never-started customer %s", crmID)
			}
		default:
			return errors.Wrapf(err, "could not look up trigger for customer %s", crmID)
		}

		if err := im.repo.UpsertOutbound(ctx, ob); err != nil {
			return errors.Wrapf(err, "could not record outbound failure for customer %s", crmID)
		}
		processed++
	}

	im.logger.Infof("Outbound report %s: %d rows reconciled, %d skipped", name, processed, len(badRows))
	im.reportBadRows(ctx, name, badRows)
	return nil
}

// importOpened is intentionally inert. The partner's opened-claims column
// layout has never been confirmed, so rows are counted for the bookkeeping
// record and nothing else is touched.
func (im *Importer) importOpened(name string, rows [][]string) error {
	count := len(rows)
	if count > 0 {
		count--
	}
	im.logger.Infof("Opened report %s: %d rows received, layout unconfirmed, no state changed", name, count)
	return nil
}

// buildReason combines the partner's reason and exception text into the
// human-readable queue entry.
func buildReason(reason, exception string) string {
	reason, exception = strings.TrimSpace(reason), strings.TrimSpace(exception)
	switch {
	case reason == "" && exception == "":
		return EmptyReason
	case reason == "":
		return exception
	case exception == "":
		return reason
	default:
		return reason + ": " + exception
	}
}

func (im *Importer) reportBadRows(ctx context.Context, name string, badRows []string) {
	if len(badRows) == 0 {
		return
	}
	im.alert(ctx, fmt.Sprintf("WellDyne report %s had %d unprocessable rows", name, len(badRows)),
		strings.Join(badRows, "\n"))
}

func (im *Importer) alert(ctx context.Context, subject, body string) {
	if err := im.mailer.OperatorAlert(ctx, subject, body); err != nil {
		im.logger.Errorf("Could not send operator alert %q: %s", subject, err)
	}
}
