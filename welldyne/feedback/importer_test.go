package feedback

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository/testrepo"
	"github.com/maleexcel/welldyne-app/welldyne/transfer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

type fakeMailer struct {
	subjects []string
}

func (f *fakeMailer) OperatorAlert(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

type shippedNotice struct {
	customerID, medication, tracking string
}

type fakeNotifier struct {
	notices []shippedNotice
}

func (f *fakeNotifier) ShippedNotice(_ context.Context, customerID, medication, tracking string) error {
	f.notices = append(f.notices, shippedNotice{customerID, medication, tracking})
	return nil
}

type ImporterTestSuite struct {
	suite.Suite
	repo     *testrepo.Repository
	handler  *transfer.LocalFileHandler
	mailer   *fakeMailer
	notifier *fakeNotifier
	importer *Importer
	now      time.Time
	inbound  string
}

func (s *ImporterTestSuite) SetupTest() {
	s.repo = testrepo.New()
	s.mailer = &fakeMailer{}
	s.notifier = &fakeNotifier{}
	s.now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	root := s.T().TempDir()
	s.inbound = "fromWellDyne"
	s.handler = &transfer.LocalFileHandler{
		Logger:  logger,
		Root:    root,
		TempDir: s.T().TempDir(),
	}

	s.importer = NewImporter(s.repo, s.handler, s.notifier, s.mailer, logger, s.inbound)
	s.importer.SetNow(func() time.Time { return s.now })
}

// writeReport renders rows into the partner's spreadsheet format and drops
// the file where the handler will look for it.
func (s *ImporterTestSuite) writeReport(name string, rows [][]string) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, value := range row {
			cellName, err := excelize.CoordinatesToCellName(c+1, r+1)
			s.Require().NoError(err)
			s.Require().NoError(f.SetCellValue(sheet, cellName, value))
		}
	}
	dir := filepath.Join(s.handler.Root, s.inbound)
	s.Require().NoError(os.MkdirAll(dir, 0750))
	s.Require().NoError(f.SaveAs(filepath.Join(dir, name)))
}

func (s *ImporterTestSuite) seedTrigger(crmID, crmOrder, medication, rxID string) *models.Trigger {
	s.Require().NoError(s.repo.UpsertTrigger(context.Background(), models.Trigger{
		CRMType:    models.CRMTypeKonnektive,
		CRMID:      crmID,
		CRMOrder:   crmOrder,
		Medication: medication,
		RxID:       rxID,
		Type:       models.TriggerInitial,
		Raw:        "initial," + medication,
	}))
	trigger, err := s.repo.GetLatestTrigger(context.Background(), models.CRMTypeKonnektive, crmID)
	s.Require().NoError(err)
	return trigger
}

func (s *ImporterTestSuite) TestShippedReportReconciles() {
	trigger := s.seedTrigger("1001", "ORD-1", "Sildenafil", "RX-A")

	s.writeReport("MaleExcel_DailyShippedOrders_030124.xlsx", [][]string{
		{"Member ID", "Ship Date", "Medication", "Rx Number", "Tracking"},
		{"001001", "2024-03-01", "Sildenafil", "7654321", "1Z999"},
	})

	s.NoError(s.importer.Run(context.Background(), ReportShipped, SlotMorning))

	updated, err := s.repo.GetTriggerByID(context.Background(), trigger.ID)
	s.NoError(err)
	s.Require().NotNil(updated.Shipped)
	s.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *updated.Shipped)
	// Shipped implies opened.
	s.Require().NotNil(updated.Opened)
	s.Equal(*updated.Shipped, *updated.Opened)

	rx, err := s.repo.GetRxNumber(context.Background(), "001001")
	s.NoError(err)
	s.Equal("7654321", rx.Number)

	s.Require().Len(s.notifier.notices, 1)
	s.Equal(shippedNotice{"1001", "Sildenafil", "1Z999"}, s.notifier.notices[0])

	s.Require().Len(s.repo.FeedbackFiles, 1)
	s.Equal(models.ImportComplete, s.repo.FeedbackFiles[0].ImportStatus)
}

func (s *ImporterTestSuite) TestShippedReportBadRowsAlertButDoNotFail() {
	s.seedTrigger("1001", "ORD-1", "Sildenafil", "RX-A")

	s.writeReport("MaleExcel_DailyShippedOrders_030124.xlsx", [][]string{
		{"Member ID", "Ship Date", "Medication", "Rx Number", "Tracking"},
		{"009999", "2024-03-01", "Sildenafil", "", ""},
		{"001001", "not a date", "Sildenafil", "", ""},
	})

	s.NoError(s.importer.Run(context.Background(), ReportShipped, SlotMorning))

	s.Require().Len(s.mailer.subjects, 1)
	s.Contains(s.mailer.subjects[0], "2 unprocessable rows")
	s.Require().Len(s.repo.FeedbackFiles, 1)
	s.Equal(models.ImportComplete, s.repo.FeedbackFiles[0].ImportStatus)
}

func (s *ImporterTestSuite) TestOutboundReportQueuesFailures() {
	trigger := s.seedTrigger("1001", "ORD-1", "Sildenafil", "RX-A")

	s.writeReport("MaleExcel_OutboundFailedClaims_030124.xlsx", [][]string{
		{"Member ID", "Order", "Reason", "Exception"},
		{"001001", "", "bad address", "code 42"},
		{"001002", "ORD-9", "", ""},
	})

	s.NoError(s.importer.Run(context.Background(), ReportOutbound, SlotMorning))

	s.Require().Len(s.repo.Outbounds, 2)

	linked := s.repo.Outbounds[0]
	s.Equal("1001", linked.CRMID)
	s.Equal("bad address: code 42", linked.Reason)
	// Order number backfilled from the linked trigger.
	s.Equal("ORD-1", linked.CRMOrder)
	s.Require().NotNil(linked.TriggerID)
	s.Equal(trigger.ID, *linked.TriggerID)
	s.False(linked.Ready)

	// Feedback for a customer with no trigger also lands in never-started.
	s.Require().Len(s.repo.NeverStarteds, 1)
	s.Equal("1002", s.repo.NeverStarteds[0].CRMID)
	s.Equal(EmptyReason, s.repo.NeverStarteds[0].Queue)
}

func (s *ImporterTestSuite) TestOutboundReportReplacesPriorFailure() {
	s.seedTrigger("1001", "ORD-1", "Sildenafil", "RX-A")

	s.writeReport("MaleExcel_OutboundFailedClaims_030124.xlsx", [][]string{
		{"Member ID", "Order", "Reason", "Exception"},
		{"001001", "", "bad address", ""},
	})
	s.NoError(s.importer.Run(context.Background(), ReportOutbound, SlotMorning))

	s.now = s.now.AddDate(0, 0, 1)
	s.writeReport("MaleExcel_OutboundFailedClaims_030224.xlsx", [][]string{
		{"Member ID", "Order", "Reason", "Exception"},
		{"001001", "", "invalid insurance", ""},
	})
	s.NoError(s.importer.Run(context.Background(), ReportOutbound, SlotMorning))

	s.Require().Len(s.repo.Outbounds, 1)
	s.Equal("invalid insurance", s.repo.Outbounds[0].Reason)
}

func (s *ImporterTestSuite) TestOpenedReportChangesNothing() {
	s.seedTrigger("1001", "ORD-1", "Sildenafil", "RX-A")

	s.writeReport("MaleExcel_DailyOpenedClaims_030124.xlsx", [][]string{
		{"Member ID", "Opened"},
		{"001001", "2024-03-01"},
	})

	s.NoError(s.importer.Run(context.Background(), ReportOpened, SlotMorning))

	trigger, err := s.repo.GetLatestTrigger(context.Background(), models.CRMTypeKonnektive, "1001")
	s.NoError(err)
	s.Nil(trigger.Opened)
	s.Empty(s.repo.Outbounds)

	s.Require().Len(s.repo.FeedbackFiles, 1)
	s.Equal(models.ImportComplete, s.repo.FeedbackFiles[0].ImportStatus)
}

func (s *ImporterTestSuite) TestMissingReportAlertsOperator() {
	err := s.importer.Run(context.Background(), ReportShipped, SlotMorning)
	s.Error(err)
	s.Require().Len(s.mailer.subjects, 1)
	s.Contains(s.mailer.subjects[0], "report missing")
	s.Empty(s.repo.FeedbackFiles)
}

func (s *ImporterTestSuite) TestHeldLeaseSkipsRun() {
	acquired, err := s.repo.AcquireLease(context.Background(), "welldyne-feedback-shipped", "other-run", time.Hour)
	s.Require().NoError(err)
	s.Require().True(acquired)

	s.NoError(s.importer.Run(context.Background(), ReportShipped, SlotMorning))
	s.Empty(s.repo.FeedbackFiles)
	s.Empty(s.mailer.subjects)
}

func TestImporterTestSuite(t *testing.T) {
	suite.Run(t, new(ImporterTestSuite))
}
